package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type policyForm struct {
	Title   string `form:"title" validate:"required,notblank,max=255"`
	Content string `form:"content" validate:"required,notblank"`
}

type signupForm struct {
	Email string `form:"email" validate:"required,email"`
	Plan  string `validate:"oneof=free paid"`
	Nick  string `form:"-" validate:"omitempty,min=3"`
}

func TestStructRequiredAndBlank(t *testing.T) {
	v := Struct(policyForm{Title: "   ", Content: ""})

	assert.Equal(t, Violations{"title": "required", "content": "required"}, v)
	assert.False(t, v.Empty())
}

func TestStructMaxCountsRunes(t *testing.T) {
	v := Struct(policyForm{Title: strings.Repeat("é", 255), Content: "body"})
	assert.True(t, v.Empty(), "runes, not bytes, are counted")

	v = Struct(policyForm{Title: strings.Repeat("a", 256), Content: "body"})
	assert.Equal(t, Violations{"title": "too_long"}, v)
}

func TestStructEmail(t *testing.T) {
	assert.True(t, Struct(signupForm{Email: "alice@example.com", Plan: "free"}).Empty())

	v := Struct(signupForm{Email: "Alice <alice@example.com>", Plan: "free"})
	assert.Equal(t, Violations{"email": "invalid_email"}, v)

	v = Struct(signupForm{Plan: "free"})
	assert.Equal(t, Violations{"email": "required"}, v, "the first failing rule wins")
}

func TestStructFieldNames(t *testing.T) {
	v := Struct(signupForm{Email: "a@b.io", Plan: "gold", Nick: "x"})

	assert.Equal(t, "invalid_choice", v["plan"], "untagged fields fall back to the lowercased name")
	assert.Equal(t, "invalid", v["Nick"], "unmapped rules report invalid")
}

func TestStructRejectsNonStruct(t *testing.T) {
	assert.Equal(t, Violations{"form": "invalid"}, Struct(42))
}

func TestRule(t *testing.T) {
	require.NoError(t, Rule("even_len", "odd_length", func(s string) bool { return len(s)%2 == 0 }))

	type form struct {
		Code string `form:"code" validate:"even_len"`
	}
	assert.True(t, Struct(form{Code: "ab"}).Empty())
	assert.Equal(t, Violations{"code": "odd_length"}, Struct(form{Code: "abc"}))
}

func TestAddKeepsFirstViolation(t *testing.T) {
	v := make(Violations)
	v.Add("title", "required")
	v.Add("title", "too_long")

	assert.Equal(t, "required", v["title"])
}
