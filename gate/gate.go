// Package gate maps roles to permission grants and answers whether a role
// may perform "resource:action". It knows nothing about domain models.
//
// R is the role type; its zero value means "no authenticated subject".
package gate

// Gate holds the grant table. It is not safe to call Grant concurrently with
// Authorize; build the table first.
type Gate[R comparable] struct {
	grants map[R]Grants
}

func NewGate[R comparable]() *Gate[R] {
	return &Gate[R]{grants: make(map[R]Grants)}
}

// Grant adds perms to role, registering the role on first use.
func (g *Gate[R]) Grant(role R, perms ...Permission) *Gate[R] {
	g.grants[role] = append(g.grants[role], perms...)
	return g
}

// Grants returns what role holds, sorted.
func (g *Gate[R]) Grants(role R) (Grants, bool) {
	gr, ok := g.grants[role]
	if !ok {
		return nil, false
	}
	return gr.Sorted(), true
}

// Authorize returns nil when role may perform perm. The zero role yields
// ErrUnauthenticated, a role never granted anything ErrUnknownRole, and a
// missing grant ErrUnauthorized.
func (g *Gate[R]) Authorize(role R, perm Permission) error {
	var zero R
	if role == zero {
		return ErrUnauthenticated
	}
	gr, ok := g.grants[role]
	if !ok {
		return ErrUnknownRole
	}
	if !gr.Allows(perm) {
		return ErrUnauthorized
	}
	return nil
}

func (g *Gate[R]) Can(role R, perm Permission) bool {
	return g.Authorize(role, perm) == nil
}
