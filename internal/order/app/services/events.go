package services

import (
	"context"
	"errors"
	"fmt"

	"restaurant-system/internal/order/app/core"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"
)

// publish sends an event after a committed write. Failures are logged and
// returned wrapped in ErrPublish so callers can report them.
func publish(ctx context.Context, p core.IPublisher, mylog logger.Logger, exchange, key string, payload any) error {
	if err := p.Publish(ctx, exchange, key, payload); err != nil {
		mylog.Action("publish_failed").Error("Failed to publish event", err, "exchange", exchange, "routing_key", key)
		if !errors.Is(err, xerrors.ErrPublish) {
			err = fmt.Errorf("%w: %v", xerrors.ErrPublish, err)
		}
		return err
	}
	return nil
}
