package core

import (
	"context"

	"restaurant-system/internal/order/domain/models"
)

type IPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload any) error
}

type IRabbitMQ interface {
	IPublisher
	IsAlive() error
	Close() error
}

// IRegistrar submits a receipt to the fiscal registrar.
type IRegistrar interface {
	Submit(ctx context.Context, r models.Receipt) (models.RegistrarResponse, error)
}
