package core

import (
	"errors"
	"testing"
	"time"

	"restaurant-system/internal/order/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSettlePayment(t *testing.T) {
	orderID := uuid.New()
	pending := models.Payment{ID: uuid.New(), OrderID: orderID, Type: models.PaymentCard, Amount: dec("370"), Status: models.PaymentPending}
	done := models.Payment{ID: uuid.New(), OrderID: orderID, Type: models.PaymentCash, Amount: dec("10"), Status: models.PaymentCompleted}
	payments := []models.Payment{done, pending}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	i, err := SettlePayment(payments, pending.ID, PaymentUpdate{Status: models.PaymentCompleted, ProcessedBy: "cashier-1", TerminalID: "T-1"}, now)
	if err != nil {
		t.Fatalf("SettlePayment: %v", err)
	}
	p := payments[i]
	if p.ID != pending.ID || p.Status != models.PaymentCompleted || p.ProcessedBy != "cashier-1" || p.TerminalID != "T-1" {
		t.Fatalf("settled = %+v", p)
	}
	if p.ProcessedAt == nil || !p.ProcessedAt.Equal(now) {
		t.Fatalf("processed_at = %v", p.ProcessedAt)
	}
	if got := models.DerivePaymentStatus(dec("370"), payments); got != models.PaymentStatusPaid {
		t.Fatalf("derived status = %s", got)
	}

	if _, err := SettlePayment(payments, done.ID, PaymentUpdate{Status: models.PaymentFailed}, now); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("settling completed payment err = %v", err)
	}
	if _, err := SettlePayment(payments, uuid.New(), PaymentUpdate{Status: models.PaymentFailed}, now); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("unknown payment err = %v", err)
	}
}

func TestApplyRefund(t *testing.T) {
	orderID := uuid.New()
	orig := models.Payment{ID: uuid.New(), OrderID: orderID, Type: models.PaymentCard, Amount: dec("370"), Status: models.PaymentCompleted}
	refund := func(amount string) models.Payment {
		return models.Payment{
			ID: uuid.New(), OrderID: orderID, Type: models.PaymentRefund, Amount: dec(amount),
			Status: models.PaymentRefunded, OriginalPaymentID: &orig.ID, CreatedAt: time.Now().UTC(),
		}
	}

	out, err := ApplyRefund([]models.Payment{orig}, refund("100"))
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if out.OriginalRefunded || out.Original.Status != models.PaymentCompleted || len(out.Payments) != 2 {
		t.Fatalf("partial refund outcome = %+v", out)
	}

	if _, err := ApplyRefund(out.Payments, refund("270.01")); !errors.Is(err, ErrValidation) {
		t.Fatalf("over-refund err = %v", err)
	}

	out, err = ApplyRefund(out.Payments, refund("270"))
	if err != nil {
		t.Fatalf("remaining refund: %v", err)
	}
	if !out.OriginalRefunded || out.Original.Status != models.PaymentRefunded || out.Payments[0].Status != models.PaymentRefunded {
		t.Fatalf("full refund outcome = %+v", out)
	}

	if _, err := ApplyRefund(out.Payments, refund("1")); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("refund of refunded payment err = %v", err)
	}
}

func TestApplyRefundRejectsBadOriginal(t *testing.T) {
	orderID := uuid.New()
	pending := models.Payment{ID: uuid.New(), OrderID: orderID, Type: models.PaymentCard, Amount: dec("50"), Status: models.PaymentPending}
	missing := uuid.New()

	tests := []struct {
		name     string
		original *uuid.UUID
		want     error
	}{
		{"no original", nil, ErrValidation},
		{"unknown original", &missing, ErrPaymentNotFound},
		{"pending original", &pending.ID, ErrIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := models.Payment{ID: uuid.New(), OrderID: orderID, Type: models.PaymentRefund, Amount: dec("1"), OriginalPaymentID: tt.original}
			if _, err := ApplyRefund([]models.Payment{pending}, r); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
