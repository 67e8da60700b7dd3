package core

import (
	"fmt"
	"time"

	"restaurant-system/internal/order/domain/models"

	"github.com/google/uuid"
)

// The payment rules below run on the locked set of an order's payments.
// Every IPaymentRepo applies them before writing, so each write path checks
// the same rules.

// SettlePayment applies upd to the payment id in payments. Only a pending
// payment can be settled. It returns the index of the settled payment.
func SettlePayment(payments []models.Payment, id uuid.UUID, upd PaymentUpdate, now time.Time) (int, error) {
	i := indexOf(payments, id)
	if i < 0 {
		return -1, ErrPaymentNotFound
	}
	p := payments[i]
	if p.Status != models.PaymentPending {
		return -1, fmt.Errorf("%w: payment %s is %s", ErrIllegalTransition, id, p.Status)
	}

	p.Status = upd.Status
	p.ProcessedBy = upd.ProcessedBy
	p.ProcessedAt = &now
	p.UpdatedAt = now
	if upd.ExternalTransactionID != "" {
		p.ExternalTransactionID = upd.ExternalTransactionID
	}
	if upd.TerminalID != "" {
		p.TerminalID = upd.TerminalID
	}
	payments[i] = p
	return i, nil
}

// RefundOutcome is what ApplyRefund decided.
type RefundOutcome struct {
	Payments []models.Payment
	Original models.Payment
	// OriginalRefunded is set when this refund brought the cumulative
	// refunds up to the original amount.
	OriginalRefunded bool
}

// ApplyRefund checks refund against its original payment and the refunds
// already recorded, then appends it. The original must be a completed
// non-refund payment and the refunds may never exceed its amount.
func ApplyRefund(payments []models.Payment, refund models.Payment) (RefundOutcome, error) {
	if refund.OriginalPaymentID == nil {
		return RefundOutcome{}, Validationf("refund without original payment")
	}
	originalID := *refund.OriginalPaymentID

	i := indexOf(payments, originalID)
	if i < 0 {
		return RefundOutcome{}, ErrPaymentNotFound
	}
	original := payments[i]
	if original.IsRefund() || original.Status != models.PaymentCompleted {
		return RefundOutcome{}, fmt.Errorf("%w: payment %s is %s", ErrIllegalTransition, original.ID, original.Status)
	}

	before := models.RefundedSoFar(originalID, payments)
	refunded := before.Add(refund.Amount)
	if refunded.GreaterThan(original.Amount) {
		return RefundOutcome{}, Validationf("refund amount %s exceeds refundable amount %s",
			refund.Amount, original.Amount.Sub(before))
	}

	out := RefundOutcome{Payments: append(payments, refund), Original: original}
	if refunded.Equal(original.Amount) {
		out.Original.Status = models.PaymentRefunded
		out.Original.UpdatedAt = refund.CreatedAt
		out.Payments[i] = out.Original
		out.OriginalRefunded = true
	}
	return out, nil
}

func indexOf(payments []models.Payment, id uuid.UUID) int {
	for i, p := range payments {
		if p.ID == id {
			return i
		}
	}
	return -1
}
