package services

import (
	"fmt"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/auth"
)

type Action string

const (
	ActOrderCreate        Action = "order.create"
	ActOrderUpdateStatus  Action = "order.update_status"
	ActOrderAssignCourier Action = "order.assign_courier"

	ActPaymentCreate  Action = "payment.create"
	ActPaymentProcess Action = "payment.process"
	ActPaymentRefund  Action = "payment.refund"

	ActReceiptCreate  Action = "receipt.create"
	ActReceiptSend    Action = "receipt.send"
	ActReceiptRetry   Action = "receipt.retry"
	ActReceiptConfirm Action = "receipt.confirm"
)

// Resource is what an action touches. Status carries the target status
// for order transitions.
type Resource struct {
	Kind   string
	ID     string
	Status string
}

// condition narrows a grant; nil means unconditional.
type condition func(Resource) bool

type Policy struct {
	rules map[Action]map[auth.Role]condition
}

func onlyDelivered(r Resource) bool {
	return r.Status == string(models.StatusDelivered)
}

func grant(roles ...auth.Role) map[auth.Role]condition {
	m := make(map[auth.Role]condition, len(roles))
	for _, r := range roles {
		m[r] = nil
	}
	return m
}

// NewPolicy returns the role table for every mutating operation. Admin is
// allowed everything.
func NewPolicy() *Policy {
	staff := []auth.Role{auth.RoleManager, auth.RoleCashier}

	updateStatus := grant(append(staff, auth.RoleSystem)...)
	updateStatus[auth.RoleCourier] = onlyDelivered

	return &Policy{rules: map[Action]map[auth.Role]condition{
		ActOrderCreate:        grant(staff...),
		ActOrderUpdateStatus:  updateStatus,
		ActOrderAssignCourier: grant(auth.RoleManager),

		ActPaymentCreate:  grant(staff...),
		ActPaymentProcess: grant(append(staff, auth.RoleSystem)...),
		ActPaymentRefund:  grant(auth.RoleManager),

		ActReceiptCreate:  grant(append(staff, auth.RoleSystem)...),
		ActReceiptSend:    grant(append(staff, auth.RoleSystem)...),
		ActReceiptRetry:   grant(auth.RoleManager, auth.RoleCashier),
		ActReceiptConfirm: grant(auth.RoleManager, auth.RoleSystem),
	}}
}

func (p *Policy) Authorize(actor auth.Actor, action Action, res Resource) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return fmt.Errorf("%w: unknown actor", core.ErrForbidden)
	}
	if actor.Role == auth.RoleAdmin {
		return nil
	}

	cond, ok := p.rules[action][actor.Role]
	if ok && (cond == nil || cond(res)) {
		return nil
	}
	return fmt.Errorf("%w: %s may not %s %s %s", core.ErrForbidden, actor.Role, action, res.Kind, res.ID)
}
