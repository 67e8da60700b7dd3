package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	database "restaurant-system/internal/order/adapter/db"
	"restaurant-system/internal/order/adapter/cache"
	"restaurant-system/internal/order/adapter/registrar"
	"restaurant-system/internal/order/api/http/handle"
	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/app/services"
	"restaurant-system/internal/xpkg/auth"
	"restaurant-system/internal/xpkg/broker"
	"restaurant-system/internal/xpkg/config"
	xdb "restaurant-system/internal/xpkg/db"
	"restaurant-system/internal/xpkg/ids"
	"restaurant-system/internal/xpkg/logger"

	"github.com/go-redis/redis/v8"
)

var ErrServerClosed = errors.New("Server closed")

var _ core.IRabbitMQ = (*broker.RabbitMQ)(nil)

type Server struct {
	mux         *http.ServeMux
	cfg         *config.Config
	srv         *http.Server
	orderParams *core.OrderParams
	mylog       logger.Logger
	db          *xdb.DB
	mb          core.IRabbitMQ
	rdb         *redis.Client
	ctx         context.Context
	appCtx      context.Context
	mu          sync.Mutex
}

func NewServer(ctx, appCtx context.Context, cfg *config.Config, orderParams *core.OrderParams, mylog logger.Logger) *Server {
	return &Server{
		ctx:         ctx,
		appCtx:      appCtx,
		cfg:         cfg,
		orderParams: orderParams,
		mylog:       mylog,
		mux:         http.NewServeMux(),
	}
}

// Run initializes routes and starts listening. It returns when the server stops.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	// Initialize database connection
	if err := s.initializeDatabase(); err != nil {
		mylog.Action("db_connection_failed").Error("Failed to connect to database", err)
		return err
	}
	mylog.Action("db_connected").Info("Successful database connection")

	// Initialize RabbitMQ connection
	if err := s.initializeRabbitMQ(); err != nil {
		mylog.Action("mb_connection_failed").Error("Failed to connect to message broker", err)
		return err
	}
	mylog.Action("mb_connected").Info("Successful message broker connection")

	s.initializeRedis()

	// Configure routes and handlers
	handler, err := s.Configure()
	if err != nil {
		mylog.Action("configure_failed").Error("Failed to configure routes", err)
		return err
	}

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.orderParams.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	mylog = mylog.WithGroup("details").With("port", s.orderParams.Port, "max-concurrent", s.orderParams.MaxConcurrent)
	mylog.Info("server is running")

	// Start the HTTP server and handle graceful shutdown
	return s.startHTTPServer()
}

// Stop provides a programmatic shutdown. Accepts a context for timeout control.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Action("graceful_shutdown_started").Info("Shutting down HTTP server...")

	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, core.WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Action("graceful_shutdown_failed").Error("Failed to shut down HTTP server gracefully", err)
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.mylog.Action("db_close_failed").Error("Failed to close database", err)
			return fmt.Errorf("db close: %w", err)
		}
		s.mylog.Action("db_closed").Info("Database closed")
	}

	if s.mb != nil {
		if err := s.mb.Close(); err != nil {
			s.mylog.Action("mb_close_failed").Error("Failed to close message broker", err)
			return fmt.Errorf("mb close: %w", err)
		}
		s.mylog.Action("mb_closed").Info("Message broker closed")
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.mylog.Action("redis_close_failed").Error("Failed to close redis", err)
			return fmt.Errorf("redis close: %w", err)
		}
	}

	s.mylog.Action("graceful_shutdown_completed").Info("HTTP server shut down gracefully")
	return nil
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) initializeDatabase() error {
	db, err := xdb.Start(s.appCtx, s.cfg.DB, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	return nil
}

func (s *Server) initializeRabbitMQ() error {
	mb, err := broker.New(s.appCtx, s.cfg.RMQ, broker.DomainTopology(), s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	s.mb = mb
	return nil
}

// initializeRedis is best effort: without redis the catalog is read from
// postgres directly.
func (s *Server) initializeRedis() {
	if s.cfg.Redis.Addr == "" {
		return
	}
	rdb, err := cache.Connect(s.appCtx, s.cfg.Redis)
	if err != nil {
		s.mylog.Action("redis_connection_failed").Warn("Catalog cache disabled", "error", err.Error())
		return
	}
	s.rdb = rdb
	s.mylog.Action("redis_connected").Info("Successful redis connection")
}

// Configure builds repositories, services and handlers and registers the
// routes.
func (s *Server) Configure() (http.Handler, error) {
	tokens, err := auth.NewTokens(s.cfg.Auth.JWTSecret, s.cfg.Auth.Issuer, s.cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	numbers, err := ids.NewGenerator(s.cfg.IDs.Node)
	if err != nil {
		return nil, err
	}

	// Repositories and services
	orderRepo := database.NewOrderRepo(s.db)
	paymentRepo := database.NewPaymentRepo(s.db)
	receiptRepo := database.NewReceiptRepo(s.db)

	var catalog core.ICatalog = database.NewCatalogRepo(s.db)
	if s.rdb != nil {
		catalog = cache.NewCatalog(catalog, s.rdb, s.cfg.Redis.TTL, s.mylog)
	}

	policy := services.NewPolicy()
	pricing := services.Pricing{TaxRate: s.cfg.Pricing.TaxRate, DeliveryFee: s.cfg.Pricing.DeliveryFee}

	orderService := services.NewOrderService(orderRepo, catalog, s.mb, policy, pricing, numbers, s.mylog)
	paymentService := services.NewPaymentService(paymentRepo, orderRepo, s.mb, policy, s.mylog)
	fiscalService := services.NewFiscalService(receiptRepo, orderRepo, paymentRepo,
		registrar.NewSimulated(s.cfg.Registrar), s.mb, policy, numbers, s.cfg.Registrar.Timeout, s.mylog)

	checks := map[string]handle.Check{
		"postgres": s.db.IsAlive,
		"rabbitmq": func(context.Context) error { return s.mb.IsAlive() },
	}
	if s.rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }
	}

	s.register(
		handle.NewHealthHandler("order-service", checks),
		handle.NewOrderHandler(orderService, s.mylog),
		handle.NewPaymentHandler(paymentService, s.mylog),
		handle.NewReceiptHandler(fiscalService, s.mylog),
	)

	return chain(s.mux,
		requestLog(s.mylog),
		limit(s.orderParams.MaxConcurrent),
		authenticate(tokens),
	), nil
}

func (s *Server) register(health *handle.HealthHandler, orders *handle.OrderHandler, payments *handle.PaymentHandler, receipts *handle.ReceiptHandler) {
	s.mux.Handle("GET /health", health.Health())

	s.mux.Handle("POST /orders", orders.Create())
	s.mux.Handle("GET /orders/{id}", orders.Get())
	s.mux.Handle("PATCH /orders/{id}/status", orders.UpdateStatus())
	s.mux.Handle("GET /orders/{id}/history", orders.History())
	s.mux.Handle("PATCH /orders/{id}/courier", orders.AssignCourier())
	s.mux.Handle("GET /orders/{id}/payments", payments.ListByOrder())
	s.mux.Handle("GET /orders/{id}/receipts", receipts.ListByOrder())

	s.mux.Handle("POST /payments", payments.Create())
	s.mux.Handle("GET /payments/{id}", payments.Get())
	s.mux.Handle("PATCH /payments/{id}/process", payments.Process())
	s.mux.Handle("PATCH /payments/{id}/refund", payments.Refund())

	s.mux.Handle("POST /fiscal/receipts", receipts.Create())
	s.mux.Handle("GET /fiscal/receipts/{id}", receipts.Get())
	s.mux.Handle("POST /fiscal/receipts/{id}/send", receipts.Send())
	s.mux.Handle("POST /fiscal/receipts/{id}/retry", receipts.Retry())
	s.mux.Handle("POST /fiscal/receipts/{id}/confirm", receipts.Confirm())
}
