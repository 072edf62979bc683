package gate

import (
	"slices"
	"strings"
)

// Permission is written "resource:action". Either half of a granted
// permission may be Any.
type Permission string

// Any stands for every resource or every action in a grant.
const Any = "*"

// PermissionSuperAdmin grants everything.
const PermissionSuperAdmin Permission = Any + ":" + Any

// NewPermission joins a resource and an action.
func NewPermission(resource string, action Action) Permission {
	return Permission(resource + ":" + string(action))
}

// Resource is the part before the colon, or "" when p is malformed.
func (p Permission) Resource() string {
	res, _, _ := p.split()
	return res
}

// Action is the part after the colon, or "" when p is malformed.
func (p Permission) Action() Action {
	_, act, _ := p.split()
	return act
}

func (p Permission) split() (string, Action, bool) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok || res == "" || act == "" {
		return "", "", false
	}
	return res, Action(act), true
}

// Covers reports whether holding p lets the holder do q.
func (p Permission) Covers(q Permission) bool {
	res, act, ok := p.split()
	if !ok {
		return false
	}
	qres, qact, ok := q.split()
	if !ok {
		return false
	}
	return (res == Any || res == qres) && (string(act) == Any || act == qact)
}

// Grants is the permission set held by one role.
type Grants []Permission

// Allows reports whether any grant covers q.
func (g Grants) Allows(q Permission) bool {
	return slices.ContainsFunc(g, func(p Permission) bool { return p.Covers(q) })
}

// Sorted returns a deduplicated copy in lexical order.
func (g Grants) Sorted() Grants {
	out := slices.Clone(g)
	slices.Sort(out)
	return slices.Compact(out)
}
