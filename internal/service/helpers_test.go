package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	"github.com/spec-kit/helpdesk-service/internal/rules"
)

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeEvaluator returns eval/err, or with hang set waits until its context
// ends like an unresponsive remote service.
type fakeEvaluator struct {
	eval  *Evaluation
	err   error
	hang  bool
	calls int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, _ TicketSummary, _ []domain.TicketResponse) (*Evaluation, error) {
	f.calls++
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.eval, f.err
}

type fakeEnhancer struct {
	enhancement *Enhancement
	err         error
	hang        bool
	calls       int
}

func (f *fakeEnhancer) Enhance(ctx context.Context, _ string) (*Enhancement, error) {
	f.calls++
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.enhancement, f.err
}

// The ctx* repositories refuse work on a finished context, as pgx does.
type ctxTickets struct{ repository.TicketRepository }

func (r ctxTickets) Create(ctx context.Context, t *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.TicketRepository.Create(ctx, t)
}

func (r ctxTickets) Update(ctx context.Context, t *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.TicketRepository.Update(ctx, t)
}

func (r ctxTickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.TicketRepository.GetByID(ctx, id)
}

type ctxResponses struct{ repository.TicketResponseRepository }

func (r ctxResponses) Create(ctx context.Context, resp *domain.TicketResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.TicketResponseRepository.Create(ctx, resp)
}

type ctxHistory struct{ repository.TicketHistoryRepository }

func (r ctxHistory) Create(ctx context.Context, h *domain.TicketHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.TicketHistoryRepository.Create(ctx, h)
}

type ctxQualityChecks struct{ repository.QualityCheckRepository }

func (r ctxQualityChecks) Create(ctx context.Context, c *domain.QualityCheck) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.QualityCheckRepository.Create(ctx, c)
}

type ctxNotifications struct{ repository.NotificationRepository }

func (r ctxNotifications) Create(ctx context.Context, n *domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.NotificationRepository.Create(ctx, n)
}

func withDeadlineAwareRepos(r Repositories) Repositories {
	r.Tickets = ctxTickets{r.Tickets}
	r.Responses = ctxResponses{r.Responses}
	r.History = ctxHistory{r.History}
	r.QualityChecks = ctxQualityChecks{r.QualityChecks}
	r.Notifications = ctxNotifications{r.Notifications}
	return r
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []domain.Notification
	err       error
}

func (f *fakeSink) Deliver(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, n)
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var allEventTypes = []events.EventType{
	events.EventTicketCreated,
	events.EventTicketStatusChanged,
	events.EventTicketAssigned,
	events.EventTicketPriorityEscalated,
	events.EventTicketResponseAdded,
	events.EventQualityReportCreated,
}

type testEnv struct {
	store     *memory.Store
	clock     *fakeClock
	evaluator *fakeEvaluator
	enhancer  *fakeEnhancer
	sink      *fakeSink
	recorder  *eventRecorder
	engine    *Engine
	workflow  *Workflow
	rules     *rules.Rules
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith is newTestEnv with the repositories passed through wrap.
func newTestEnvWith(t *testing.T, wrap func(Repositories) Repositories) *testEnv {
	t.Helper()
	ruleSet, err := rules.Default()
	require.NoError(t, err)

	env := &testEnv{
		store:     memory.NewStore(),
		clock:     &fakeClock{now: testEpoch},
		evaluator: &fakeEvaluator{eval: &Evaluation{Score: 60}},
		enhancer:  &fakeEnhancer{enhancement: &Enhancement{}},
		sink:      &fakeSink{},
		recorder:  &eventRecorder{},
		rules:     ruleSet,
	}
	repos := env.repos()
	if wrap != nil {
		repos = wrap(repos)
	}
	env.engine = NewEngine(EngineDependencies{
		Config: config.Config{
			Notification: config.NotificationConfig{Enabled: true, ChannelPrefix: "notifications:"},
			Engine:       config.EngineConfig{OverdueThresholdHours: 24, QualityWarnRating: 3.0},
		},
		Repos:     repos,
		Rules:     ruleSet,
		Evaluator: env.evaluator,
		Enhancer:  env.enhancer,
		Sink:      env.sink,
		Clock:     env.clock.Now,
	})
	env.engine.Notifications.RegisterHandlers()
	for _, et := range allEventTypes {
		env.engine.Dispatcher.Subscribe(et, env.recorder.handle)
	}
	env.workflow = env.engine.Workflow
	return env
}

func (e *testEnv) repos() Repositories {
	return Repositories{
		Transactor:    e.store,
		Tickets:       e.store.Tickets(),
		Responses:     e.store.Responses(),
		History:       e.store.History(),
		Users:         e.store.Users(),
		QualityChecks: e.store.QualityChecks(),
		Notifications: e.store.Notifications(),
	}
}

func (e *testEnv) addUser(t *testing.T, id string, role domain.UserRole, department string) domain.User {
	t.Helper()
	user := domain.User{ID: id, Username: id, Role: role, Department: department}
	require.NoError(t, e.store.Users().Create(context.Background(), &user))
	return user
}

// seedTicket stores a ticket directly, bypassing the workflow.
func (e *testEnv) seedTicket(t *testing.T, id string, status domain.TicketStatus, updatedAt time.Time, agentID *string) domain.Ticket {
	t.Helper()
	ticket := domain.Ticket{
		ID:              id,
		Title:           "ticket " + id,
		Content:         "printer on floor 3 is jammed",
		Status:          status,
		Priority:        domain.TicketPriorityMedium,
		Source:          domain.TicketSourceEmployeeCreated,
		UserID:          "owner-1",
		AssignedAgentID: agentID,
		Metadata:        map[string]any{},
		CreatedAt:       updatedAt,
		UpdatedAt:       updatedAt,
	}
	require.NoError(t, e.store.Tickets().Create(context.Background(), &ticket))
	return ticket
}

func strPtr(s string) *string { return &s }
