package worker

import (
	"context"
	"fmt"
	"sync"

	"restaurant-system/internal/dispatcher/app/core"
	"restaurant-system/internal/dispatcher/app/handlers"
	database "restaurant-system/internal/order/adapter/db"
	"restaurant-system/internal/order/adapter/registrar"
	"restaurant-system/internal/order/app/services"
	"restaurant-system/internal/xpkg/broker"
	"restaurant-system/internal/xpkg/config"
	xdb "restaurant-system/internal/xpkg/db"
	"restaurant-system/internal/xpkg/ids"
	"restaurant-system/internal/xpkg/logger"

	"golang.org/x/sync/errgroup"
)

type Worker struct {
	cfg          *config.Config
	workerParams *core.WorkerParams
	mylog        logger.Logger
	db           *xdb.DB
	mb           *broker.RabbitMQ
	ctx          context.Context
	appCtx       context.Context

	mu sync.Mutex
}

func NewWorker(ctx, appCtx context.Context, cfg *config.Config, workerParams *core.WorkerParams, mylog logger.Logger) *Worker {
	return &Worker{
		ctx:          ctx,
		appCtx:       appCtx,
		cfg:          cfg,
		workerParams: workerParams,
		mylog:        mylog.With("worker_name", workerParams.WorkerName),
	}
}

// Run connects to postgres and rabbitmq and consumes every domain queue
// until ctx is done.
func (w *Worker) Run() error {
	mylog := w.mylog.Action("worker_started")

	if err := w.initializeDatabase(); err != nil {
		mylog.Action("db_connection_failed").Error("Failed to connect to database", err)
		return err
	}
	mylog.Action("db_connected").Info("Successful database connection")

	if err := w.initializeRabbitMQ(); err != nil {
		mylog.Action("mb_connection_failed").Error("Failed to connect to message broker", err)
		return err
	}
	mylog.Action("mb_connected").Info("Successful message broker connection")

	h, err := w.configure()
	if err != nil {
		mylog.Action("configure_failed").Error("Failed to configure handlers", err)
		return err
	}

	return w.consume(h.Routes())
}

func (w *Worker) configure() (*handlers.Handlers, error) {
	numbers, err := ids.NewGenerator(w.cfg.IDs.Node)
	if err != nil {
		return nil, err
	}

	fiscal := services.NewFiscalService(
		database.NewReceiptRepo(w.db),
		database.NewOrderRepo(w.db),
		database.NewPaymentRepo(w.db),
		registrar.NewSimulated(w.cfg.Registrar),
		w.mb,
		services.NewPolicy(),
		numbers,
		w.cfg.Registrar.Timeout,
		w.mylog,
	)
	return handlers.New(fiscal, w.mb, w.workerParams.WorkerName, w.mylog), nil
}

// consume runs one consumer per queue. Each consumer handles its queue in
// order; queues are independent of each other.
func (w *Worker) consume(routes map[string]broker.Handler) error {
	g, ctx := errgroup.WithContext(w.ctx)
	for queue, h := range routes {
		consumer := fmt.Sprintf("%s-%s", w.workerParams.WorkerName, queue)
		g.Go(func() error {
			return w.mb.Consume(ctx, queue, consumer, w.workerParams.Prefetch, h)
		})
	}
	w.mylog.Action("consumers_started").Info("Consuming domain queues", "queues", len(routes))
	return g.Wait()
}

func (w *Worker) initializeDatabase() error {
	d, err := xdb.Start(w.appCtx, w.cfg.DB, w.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	w.db = d
	return nil
}

func (w *Worker) initializeRabbitMQ() error {
	mb, err := broker.New(w.appCtx, w.cfg.RMQ, broker.DomainTopology(), w.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	w.mb = mb
	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.mylog.Action("graceful_shutdown_started").Info("Shutting down")

	if w.mb != nil {
		if err := w.mb.Close(); err != nil {
			w.mylog.Action("mb_close_failed").Error("Failed to close message broker", err)
			return fmt.Errorf("mb close: %w", err)
		}
		w.mylog.Action("mb_closed").Info("Message broker closed")
	}

	if w.db != nil {
		if err := w.db.Close(); err != nil {
			w.mylog.Action("db_close_failed").Error("Failed to close database", err)
			return fmt.Errorf("db close: %w", err)
		}
		w.mylog.Action("db_closed").Info("Database closed")
	}

	w.mylog.Action("graceful_shutdown_completed").Info("Successfully shut down")
	return nil
}
