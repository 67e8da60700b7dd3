package registrar

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/config"
)

// Simulated stands in for a fiscal operator. It answers after Latency
// (plus up to half of it as jitter) and rejects a FailureRate share of
// submissions.
type Simulated struct {
	Latency     time.Duration
	FailureRate float64

	// roll returns a number in [0, 1); replaced in tests
	roll func() float64
}

func NewSimulated(cfg *config.Registrar) *Simulated {
	return &Simulated{
		Latency:     cfg.Latency,
		FailureRate: cfg.FailureRate,
		roll:        rand.Float64,
	}
}

// Submit honours ctx: a deadline that expires before the simulated
// processing time returns ctx.Err().
func (s *Simulated) Submit(ctx context.Context, r models.Receipt) (models.RegistrarResponse, error) {
	delay := s.Latency
	if delay > 0 {
		delay += time.Duration(s.roll() * float64(s.Latency/2))
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return models.RegistrarResponse{}, ctx.Err()
	case <-t.C:
	}

	if s.roll() < s.FailureRate {
		return models.RegistrarResponse{}, fmt.Errorf("registrar rejected receipt %s: service unavailable", r.Number)
	}

	return models.RegistrarResponse{
		RegistrarID: fmt.Sprintf("%s-%s", r.StorageSerial, r.DocumentNumber),
		Code:        0,
		Message:     "accepted",
		AcceptedAt:  time.Now().UTC(),
	}, nil
}
