package gate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-policies/gate"
)

// mapResolver counts lookups against a mutable map.
type mapResolver struct {
	mu    sync.Mutex
	roles map[uint]string
	calls int
}

func (m *mapResolver) Resolve(_ context.Context, id uint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	r, ok := m.roles[id]
	if !ok {
		return "", errors.New("not found")
	}
	return r, nil
}

func (m *mapResolver) set(id uint, r string) {
	m.mu.Lock()
	m.roles[id] = r
	m.mu.Unlock()
}

func TestCachedResolver_CachesRole(t *testing.T) {
	inner := &mapResolver{roles: map[uint]string{1: "Staff"}}
	cached := gate.NewCachedResolver[uint, string](inner, 5*time.Minute)

	r1, err := cached.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1 != "Staff" {
		t.Errorf("expected 'Staff', got '%s'", r1)
	}

	inner.set(1, "Admin")

	r2, err := cached.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r2 != "Staff" {
		t.Errorf("expected cached 'Staff', got '%s'", r2)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
}

func TestCachedResolver_Invalidate(t *testing.T) {
	inner := &mapResolver{roles: map[uint]string{1: "Staff"}}
	cached := gate.NewCachedResolver[uint, string](inner, 5*time.Minute)

	_, _ = cached.Resolve(context.Background(), 1)
	inner.set(1, "Admin")
	cached.Invalidate(1)

	r, err := cached.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != "Admin" {
		t.Errorf("expected 'Admin' after invalidation, got '%s'", r)
	}
}

func TestCachedResolver_InvalidateAll(t *testing.T) {
	inner := &mapResolver{roles: map[uint]string{1: "Staff", 2: "Staff"}}
	cached := gate.NewCachedResolver[uint, string](inner, 5*time.Minute)

	_, _ = cached.Resolve(context.Background(), 1)
	_, _ = cached.Resolve(context.Background(), 2)
	inner.set(1, "Admin")
	inner.set(2, "Admin")
	cached.InvalidateAll()

	for _, id := range []uint{1, 2} {
		r, _ := cached.Resolve(context.Background(), id)
		if r != "Admin" {
			t.Errorf("user %d: expected 'Admin' after InvalidateAll, got '%s'", id, r)
		}
	}
}

func TestCachedResolver_TTLExpiry(t *testing.T) {
	inner := &mapResolver{roles: map[uint]string{1: "Staff"}}
	cached := gate.NewCachedResolver[uint, string](inner, 10*time.Millisecond)

	_, _ = cached.Resolve(context.Background(), 1)
	inner.set(1, "Admin")
	time.Sleep(20 * time.Millisecond)

	r, _ := cached.Resolve(context.Background(), 1)
	if r != "Admin" {
		t.Errorf("expected 'Admin' after TTL expiry, got '%s'", r)
	}
}

func TestCachedResolver_ErrorsNotCached(t *testing.T) {
	inner := &mapResolver{roles: map[uint]string{}}
	cached := gate.NewCachedResolver[uint, string](inner, 5*time.Minute)

	if _, err := cached.Resolve(context.Background(), 7); err == nil {
		t.Fatal("expected error for unknown subject")
	}
	inner.set(7, "Staff")
	r, err := cached.Resolve(context.Background(), 7)
	if err != nil || r != "Staff" {
		t.Errorf("expected 'Staff' after inner recovered, got %q, %v", r, err)
	}
}

func TestResolverFunc(t *testing.T) {
	f := gate.ResolverFunc[uint, string](func(_ context.Context, id uint) (string, error) {
		if id == 1 {
			return "Admin", nil
		}
		return "", errors.New("nope")
	})
	if r, err := f.Resolve(context.Background(), 1); err != nil || r != "Admin" {
		t.Errorf("expected Admin, got %q %v", r, err)
	}
}
