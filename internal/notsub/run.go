package notsub

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"regexp"
	"syscall"

	"restaurant-system/internal/notsub/adapter/consumer"
	"restaurant-system/internal/notsub/app/core"
	"restaurant-system/internal/xpkg/config"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"
)

type params struct {
	subParams  core.SubscriberParams
	configPath string
	cfg        *config.Config
}

var subscriberName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Execute starts the notification subscriber
func Execute(ctx context.Context, mylog logger.Logger, args []string) error {
	newCtx, close := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer close()

	params, err := parseParams(args)
	if err != nil {
		mylog.Action("command_parse_failed").Error("Invalid command received", err)
		return err
	}
	mylog.Action("command_parse_completed").Debug("Received params", "config_path", params.configPath)

	if err = validateParams(params); err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}
	mylog.Action("command_validation_completed").Info("Successfully validate params")

	notsub := consumer.NewNotification(newCtx, context.Background(), params.cfg, params.subParams, mylog)

	if err := notsub.Run(); err != nil && !errors.Is(err, context.Canceled) {
		mylog.Action("notsub_run_failed").Error("Notification subscriber service stopped with error", err)
		notsub.Stop()
		return err
	}
	return notsub.Stop()
}

// Helper functions to validate cli params

// parseParams parse params from terminal
func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("notification-subscriber", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")
	subscriber := fs.String("subscriber", "console", "Subscriber name, the queue is notifications.<subscriber>")
	prefetch := fs.Int("prefetch", 10, "RabbitMQ prefetch count")

	if err := fs.Parse(args); err != nil {
		return nil, xerrors.ErrParseCmd
	}

	if *showHelp {
		fs.Usage()
		return nil, xerrors.ErrHelp
	}

	return &params{
		subParams:  core.SubscriberParams{Subscriber: *subscriber, Prefetch: *prefetch},
		configPath: *configPath,
	}, nil
}

// validateParams validates params
func validateParams(params *params) error {
	if !subscriberName.MatchString(params.subParams.Subscriber) {
		return fmt.Errorf("invalid subscriber name %q: lowercase letters, digits, '-' and '_' only", params.subParams.Subscriber)
	}
	if params.subParams.Prefetch <= 0 {
		return fmt.Errorf("prefetch must be positive: %d", params.subParams.Prefetch)
	}

	cfg, err := config.LoadConfig(params.configPath)
	if err != nil {
		return err
	}
	params.cfg = cfg
	return nil
}
