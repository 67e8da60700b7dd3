package dispatcher

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"restaurant-system/internal/dispatcher/adapter/worker"
	"restaurant-system/internal/dispatcher/app/core"
	"restaurant-system/internal/xpkg/config"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"
)

type params struct {
	workerParams *core.WorkerParams
	configPath   string
	cfg          *config.Config
}

// Execute starts the worker dispatcher
func Execute(ctx context.Context, mylog logger.Logger, args []string) error {
	newCtx, close := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer close()

	params, err := parseParams(args)
	if err != nil {
		mylog.Action("command_parse_failed").Error("Invalid command received", err)
		return err
	}
	if err = validateParams(params); err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}
	mylog.Action("command_validation_completed").Info("Successfully validate params",
		"worker_name", params.workerParams.WorkerName, "prefetch", params.workerParams.Prefetch)

	w := worker.NewWorker(newCtx, context.Background(), params.cfg, params.workerParams, mylog)

	if err := w.Run(); err != nil && !errors.Is(err, context.Canceled) {
		mylog.Action("worker_run_failed").Error("Worker dispatcher stopped with error", err)
		w.Stop()
		return err
	}
	return w.Stop()
}

// Helper functions to validate cli params

// parseParams parse params from terminal
func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("worker-dispatcher", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")

	workerName := fs.String("worker-name", defaultWorkerName(), "Unique name of this dispatcher instance")
	prefetch := fs.Int("prefetch", 1, "RabbitMQ prefetch count per queue")

	if err := fs.Parse(args); err != nil {
		return nil, xerrors.ErrParseCmd
	}

	if *showHelp {
		fs.Usage()
		return nil, xerrors.ErrHelp
	}

	return &params{
		workerParams: &core.WorkerParams{
			WorkerName: *workerName,
			Prefetch:   *prefetch,
		},
		configPath: *configPath,
	}, nil
}

// validateParams validates params
func validateParams(params *params) error {
	wp := params.workerParams
	if wp.WorkerName == "" {
		return errors.New("worker name must not be empty")
	}
	if wp.Prefetch <= 0 {
		return fmt.Errorf("prefetch must be positive: %d", wp.Prefetch)
	}

	cfg, err := config.LoadConfig(params.configPath)
	if err != nil {
		return err
	}
	params.cfg = cfg
	return nil
}

func defaultWorkerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-dispatcher"
	}
	return "worker-dispatcher-" + host
}
