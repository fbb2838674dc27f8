package service

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/rules"
)

// Repositories is the storage the engine runs on.
type Repositories struct {
	Transactor    repository.Transactor
	Tickets       repository.TicketRepository
	Responses     repository.TicketResponseRepository
	History       repository.TicketHistoryRepository
	Users         repository.UserRepository
	QualityChecks repository.QualityCheckRepository
	Notifications repository.NotificationRepository
}

// EngineDependencies bundles what NewEngine wires together. Evaluator,
// Enhancer and Sink may be nil; the engine then always takes its fallbacks.
type EngineDependencies struct {
	Config       config.Config
	Repos        Repositories
	Rules        *rules.Rules
	Evaluator    Evaluator
	Enhancer     Enhancer
	Sink         NotificationSink
	Dispatcher   events.Dispatcher
	TokenManager *auth.TokenManager
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Clock        Clock
}

// Engine is the assembled set of services.
type Engine struct {
	Workflow      *Workflow
	Notifications *NotificationService
	Auth          *AuthService
	Dispatcher    events.Dispatcher
}

// NewEngine builds every service. Notification handlers are subscribed
// separately by the notification worker.
func NewEngine(deps EngineDependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher(logger)
	}
	cfg := deps.Config
	repos := deps.Repos
	externalTimeout := cfg.LLM.Timeout()

	extractor := NewFieldExtractor(deps.Rules)
	status := NewStatusManager(StatusManagerDependencies{
		TicketRepo:       repos.Tickets,
		HistoryRepo:      repos.History,
		Dispatcher:       dispatcher,
		Metrics:          deps.Metrics,
		Logger:           logger.Named("status"),
		Clock:            deps.Clock,
		OverdueThreshold: cfg.Engine.OverdueThreshold(),
	})
	assigner := NewAgentAssigner(AgentAssignerDependencies{
		TicketRepo:  repos.Tickets,
		UserRepo:    repos.Users,
		HistoryRepo: repos.History,
		Rules:       deps.Rules,
		Dispatcher:  dispatcher,
		Metrics:     deps.Metrics,
		Logger:      logger.Named("assigner"),
		Clock:       deps.Clock,
	})
	aiExtractor := NewAIFieldExtractor(AIFieldExtractorDependencies{
		Base:     extractor,
		Enhancer: deps.Enhancer,
		Timeout:  externalTimeout,
		Metrics:  deps.Metrics,
		Logger:   logger.Named("extractor"),
	})
	quality := NewQualityChecker(QualityCheckerDependencies{
		TicketRepo:       repos.Tickets,
		ResponseRepo:     repos.Responses,
		UserRepo:         repos.Users,
		QualityCheckRepo: repos.QualityChecks,
		NotificationRepo: repos.Notifications,
		Evaluator:        deps.Evaluator,
		Timeout:          externalTimeout,
		Dispatcher:       dispatcher,
		Metrics:          deps.Metrics,
		Logger:           logger.Named("quality"),
		Clock:            deps.Clock,
	})
	workflow := NewWorkflow(WorkflowDependencies{
		Transactor:        repos.Transactor,
		TicketRepo:        repos.Tickets,
		ResponseRepo:      repos.Responses,
		StatusManager:     status,
		AgentAssigner:     assigner,
		FieldExtractor:    extractor,
		AIFieldExtractor:  aiExtractor,
		QualityChecker:    quality,
		Dispatcher:        dispatcher,
		Logger:            logger.Named("workflow"),
		Clock:             deps.Clock,
		QualityWarnRating: cfg.Engine.QualityWarnRating,
	})
	notifications := NewNotificationService(NotificationServiceDependencies{
		NotificationRepo: repos.Notifications,
		Sink:             deps.Sink,
		Dispatcher:       dispatcher,
		Logger:           logger.Named("notifications"),
		Config:           cfg.Notification,
	})
	authService := NewAuthService(cfg, AuthDependencies{
		UserRepo:     repos.Users,
		TokenManager: deps.TokenManager,
		Logger:       logger.Named("auth"),
	})

	return &Engine{
		Workflow:      workflow,
		Notifications: notifications,
		Auth:          authService,
		Dispatcher:    dispatcher,
	}
}
