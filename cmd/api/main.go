package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/llm"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/rules"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ruleSet, err := rules.Load(cfg.Engine.RulesFile)
	if err != nil {
		logger.Fatal("failed to load rules", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	repos := service.Repositories{
		Transactor:    persistence.NewTxManager(pool),
		Tickets:       repository.NewTicketRepository(pool),
		Responses:     repository.NewTicketResponseRepository(pool),
		History:       repository.NewTicketHistoryRepository(pool),
		Users:         repository.NewUserRepository(pool),
		QualityChecks: repository.NewQualityCheckRepository(pool),
		Notifications: repository.NewNotificationRepository(pool),
	}

	var (
		evaluator service.Evaluator
		enhancer  service.Enhancer
	)
	if cfg.LLM.Enabled {
		client := llm.NewClient(cfg.LLM, logger.Named("llm"))
		evaluator = llm.NewQualityEvaluator(client)
		enhancer = llm.NewFieldEnhancer(client, ruleSet.Categories())
	} else {
		logger.Info("llm disabled, keyword extraction and default quality scores apply")
	}

	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	engine := service.NewEngine(service.EngineDependencies{
		Config:       *cfg,
		Repos:        repos,
		Rules:        ruleSet,
		Evaluator:    evaluator,
		Enhancer:     enhancer,
		Sink:         service.NewRedisNotificationSink(redis.Client, cfg.Notification.ChannelPrefix),
		Dispatcher:   events.NewInMemoryDispatcher(logger.Named("events")),
		TokenManager: tokens,
		Metrics:      metrics,
		Logger:       logger,
	})
	worker.StartNotificationWorker(engine.Notifications)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:           handlers.NewAuthHandler(engine.Auth),
		Tickets:        handlers.NewTicketsHandler(engine.Workflow),
		AgentTickets:   handlers.NewAgentTicketsHandler(engine.Workflow),
		Notifications:  handlers.NewNotificationsHandler(engine.Notifications),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, repos.Users),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
