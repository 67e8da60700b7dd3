package auth

import "context"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
	RoleCourier Role = "courier"
	RoleSystem  Role = "system"
)

var validRoles = map[Role]bool{
	RoleAdmin:   true,
	RoleManager: true,
	RoleCashier: true,
	RoleCourier: true,
	RoleSystem:  true,
}

func (r Role) Valid() bool {
	return validRoles[r]
}

// Actor is whoever performs a mutating call; its ID lands in the audit
// columns (cashier_id, processed_by, changed_by).
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is the actor used by background workers.
var System = Actor{ID: "worker-dispatcher", Role: RoleSystem}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
