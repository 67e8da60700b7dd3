package registrar

import (
	"context"
	"errors"
	"testing"
	"time"

	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/config"
)

func receipt() models.Receipt {
	return models.Receipt{Number: "FR-0000000000000000001", StorageSerial: "9999078900001234", DocumentNumber: "42"}
}

func TestSimulatedAccepts(t *testing.T) {
	s := NewSimulated(&config.Registrar{})
	resp, err := s.Submit(context.Background(), receipt())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.RegistrarID != "9999078900001234-42" || resp.Code != 0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSimulatedFailureRate(t *testing.T) {
	s := NewSimulated(&config.Registrar{FailureRate: 0.5})
	s.roll = func() float64 { return 0.1 }
	if _, err := s.Submit(context.Background(), receipt()); err == nil {
		t.Fatal("expected rejection")
	}

	s.roll = func() float64 { return 0.9 }
	if _, err := s.Submit(context.Background(), receipt()); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestSimulatedHonoursDeadline(t *testing.T) {
	s := NewSimulated(&config.Registrar{Latency: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Submit(ctx, receipt())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("Submit ignored the deadline")
	}
}
