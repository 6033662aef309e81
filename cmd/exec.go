package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ticket-workflow/config"
	"ticket-workflow/internal/events"
	"ticket-workflow/internal/handlers"
	"ticket-workflow/internal/services"
	"ticket-workflow/internal/store/memory"
	"ticket-workflow/internal/store/pbstore"
	"ticket-workflow/internal/store/sqlstore"
	_ "ticket-workflow/migrations"
	"ticket-workflow/models"
	"ticket-workflow/monitoring"
	"ticket-workflow/security"
	"ticket-workflow/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// metricsIdentity is the internal admin used for periodic stat snapshots.
var metricsIdentity = models.Admin("system:metrics")

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	setupLogger(cfg)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: false,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor()
	}

	// Redis backs idempotency keys and rate limiting; both are skipped
	// without it.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		redisClient = client
	}

	var guard services.RequestGuard
	if redisClient != nil {
		guard = services.NewRedisRequestGuard(redisClient, cfg.IdempotencyTTL)
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	feed := events.NewFeed(publisher, nil, slog.Default())
	defer feed.Close()

	store, closeStore, err := newStore(ctx, cfg, app)
	if err != nil {
		return err
	}
	defer closeStore()

	workflow := services.NewWorkflowService(store, feed, monitor, guard)

	app.RootCmd.AddCommand(newSeedCommand(app, cfg, store, workflow))

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if cfg.StoreDriver == "pocketbase" {
			if err := pbstore.EnsureSchema(e.App); err != nil {
				return fmt.Errorf("ensure workflow collections: %w", err)
			}
		}

		var middlewares []func(*core.RequestEvent) error
		if redisClient != nil {
			middlewares = append(middlewares, security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute).Middleware())
		}
		handlers.RegisterRoutes(e.Router, workflow, handlers.Authenticator{AdminCollection: cfg.AdminCollection}, middlewares...)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(redisClient); err != nil {
					return e.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		// Start background tasks
		go services.NewSweeper(workflow, cfg.SweepInterval).Run(ctx)
		if monitor != nil {
			go monitor.Collect(ctx, cfg.MetricsInterval, func(ctx context.Context) (*models.Stats, error) {
				return workflow.Stats(ctx, metricsIdentity)
			})
			go serveMetrics(ctx, cfg.MetricsPort)
		}

		slog.Info("server routes registered", "store", cfg.StoreDriver, "event_sink", cfg.EventSink)
		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		slog.Info("shutdown signal received, stopping background tasks")
		cancel()
		return e.Next()
	})

	return app.Start()
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func newStore(ctx context.Context, cfg *config.Config, app core.App) (services.Store, func(), error) {
	noop := func() {}
	switch cfg.StoreDriver {
	case "memory":
		return memory.New(models.DefaultTicketTypes()...), noop, nil
	case "pocketbase", "":
		return pbstore.New(app), noop, nil
	case "postgres", "postgresql", "mysql":
		if cfg.DatabaseDSN == "" {
			return nil, noop, fmt.Errorf("DATABASE_DSN is required for store driver %s", cfg.StoreDriver)
		}
		store, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, noop, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, noop, err
		}
		if _, err := services.EnsureDefaults(ctx, store); err != nil {
			store.Close()
			return nil, noop, err
		}
		slog.Info("connected to sql store", "driver", cfg.StoreDriver)
		return store, func() { store.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.EventSink {
	case "pubnub":
		if cfg.PubNubPublishKey == "" {
			return nil, errors.New("PUBNUB_PUBLISH_KEY is required for the pubnub event sink")
		}
		return events.NewPubNubPublisher(events.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UUID:         cfg.PubNubUUID,
		}), nil
	case "rabbitmq":
		return events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.EventQueue)
	case "log", "":
		return events.NewLogPublisher(slog.Default()), nil
	case "none":
		return events.NopPublisher{}, nil
	}
	return nil, fmt.Errorf("unknown event sink %q", cfg.EventSink)
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "error", err)
	}
}
