// Package memory provides in-memory implementations of the repository
// interfaces. Transactions snapshot every table and restore the snapshot when
// the unit of work fails. Writes made outside a transaction wait for any open
// transaction to finish, so a rollback never discards them.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Operation names accepted by FailOn.
const (
	OpTicketCreate       = "tickets.create"
	OpTicketUpdate       = "tickets.update"
	OpResponseCreate     = "responses.create"
	OpHistoryCreate      = "history.create"
	OpQualityCheckCreate = "quality_checks.create"
	OpNotificationCreate = "notifications.create"
	OpUserList           = "users.list"
)

type txKey struct{}

type tables struct {
	tickets       map[string]domain.Ticket
	responses     []domain.TicketResponse
	history       []domain.TicketHistory
	users         map[string]domain.User
	qualityChecks []domain.QualityCheck
	notifications []domain.Notification
}

func (t tables) clone() tables {
	out := tables{
		tickets:       make(map[string]domain.Ticket, len(t.tickets)),
		responses:     slices.Clone(t.responses),
		history:       slices.Clone(t.history),
		users:         maps.Clone(t.users),
		qualityChecks: slices.Clone(t.qualityChecks),
		notifications: slices.Clone(t.notifications),
	}
	for id, ticket := range t.tickets {
		out.tickets[id] = copyTicket(ticket)
	}
	return out
}

// Store holds every table and hands out repository views over them.
type Store struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	data   tables
	faults map[string]error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		data: tables{
			tickets: make(map[string]domain.Ticket),
			users:   make(map[string]domain.User),
		},
		faults: make(map[string]error),
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	return s.faults[op]
}

// WithinTx implements repository.Transactor. Transactions are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, struct{}{})); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// lockWrite takes the locks a write needs and returns the matching unlock.
// Outside a transaction the write also holds txMu so that it can not land
// between a snapshot and its restore.
func (s *Store) lockWrite(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func (s *Store) restore(snapshot tables) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snapshot
}

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s} }

// Responses returns the ticket response repository view.
func (s *Store) Responses() repository.TicketResponseRepository { return &responseRepo{s} }

// History returns the ticket history repository view.
func (s *Store) History() repository.TicketHistoryRepository { return &historyRepo{s} }

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

// QualityChecks returns the quality check repository view.
func (s *Store) QualityChecks() repository.QualityCheckRepository { return &qualityRepo{s} }

// Notifications returns the notification repository view.
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepo{s} }

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	defer r.s.lockWrite(ctx)()
	if err := r.s.fault(OpTicketCreate); err != nil {
		return err
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	r.s.data.tickets[ticket.ID] = copyTicket(*ticket)
	return nil
}

func (r *ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	defer r.s.lockWrite(ctx)()
	if err := r.s.fault(OpTicketUpdate); err != nil {
		return err
	}
	if _, ok := r.s.data.tickets[ticket.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.data.tickets[ticket.ID] = copyTicket(*ticket)
	return nil
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ticket, ok := r.s.data.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyTicket(ticket)
	return &out, nil
}

func (r *ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.Ticket
	for _, ticket := range r.s.data.tickets {
		if matchesFilter(ticket, filter) {
			result = append(result, copyTicket(ticket))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 {
		start := min(max(filter.Offset, 0), len(result))
		end := min(start+filter.Limit, len(result))
		result = result[start:end]
	}
	return result, nil
}

func (r *ticketRepo) CountByStatus(_ context.Context) (map[domain.TicketStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[domain.TicketStatus]int, len(domain.TicketStatuses))
	for _, ticket := range r.s.data.tickets {
		counts[ticket.Status]++
	}
	return counts, nil
}

func (r *ticketRepo) CountActiveByAgent(_ context.Context, agentID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, ticket := range r.s.data.tickets {
		if ticket.AssignedAgentID != nil && *ticket.AssignedAgentID == agentID && ticket.Status.IsActive() {
			count++
		}
	}
	return count, nil
}

func matchesFilter(ticket domain.Ticket, filter repository.TicketFilter) bool {
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, ticket.Status) {
		return false
	}
	if filter.AgentID != nil && (ticket.AssignedAgentID == nil || *ticket.AssignedAgentID != *filter.AgentID) {
		return false
	}
	if filter.UserID != nil && ticket.UserID != *filter.UserID {
		return false
	}
	if filter.Source != nil && ticket.Source != *filter.Source {
		return false
	}
	if filter.UpdatedBefore != nil && !ticket.UpdatedAt.Before(*filter.UpdatedBefore) {
		return false
	}
	return true
}

type responseRepo struct{ s *Store }

func (r *responseRepo) Create(ctx context.Context, response *domain.TicketResponse) error {
	defer r.s.lockWrite(ctx)()
	if err := r.s.fault(OpResponseCreate); err != nil {
		return err
	}
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	r.s.data.responses = append(r.s.data.responses, *response)
	return nil
}

func (r *responseRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketResponse, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.TicketResponse
	for _, response := range r.s.data.responses {
		if response.TicketID == ticketID {
			result = append(result, response)
		}
	}
	return result, nil
}

type historyRepo struct{ s *Store }

func (r *historyRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	defer r.s.lockWrite(ctx)()
	if err := r.s.fault(OpHistoryCreate); err != nil {
		return err
	}
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	r.s.data.history = append(r.s.data.history, *history)
	return nil
}

func (r *historyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.TicketHistory
	for _, entry := range r.s.data.history {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	defer r.s.lockWrite(ctx)()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, user := range r.s.data.users {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) ListByRole(_ context.Context, role domain.UserRole) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault(OpUserList); err != nil {
		return nil, err
	}
	var result []domain.User
	for _, user := range r.s.data.users {
		if user.Role == role {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type qualityRepo struct{ s *Store }

func (r *qualityRepo) Create(ctx context.Context, check *domain.QualityCheck) error {
	defer r.s.lockWrite(ctx)()
	if err := r.s.fault(OpQualityCheckCreate); err != nil {
		return err
	}
	if check.ID == "" {
		check.ID = uuid.NewString()
	}
	stored := *check
	stored.Comments = slices.Clone(check.Comments)
	r.s.data.qualityChecks = append(r.s.data.qualityChecks, stored)
	return nil
}

func (r *qualityRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.QualityCheck, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.QualityCheck
	for _, check := range r.s.data.qualityChecks {
		if check.TicketID == ticketID {
			result = append(result, check)
		}
	}
	return result, nil
}

func (r *qualityRepo) ListScores(_ context.Context) ([]float64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	scores := make([]float64, 0, len(r.s.data.qualityChecks))
	for _, check := range r.s.data.qualityChecks {
		scores = append(scores, check.Score)
	}
	return scores, nil
}

type notificationRepo struct{ s *Store }

func (r *notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	defer r.s.lockWrite(ctx)()
	if err := r.s.fault(OpNotificationCreate); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	r.s.data.notifications = append(r.s.data.notifications, *n)
	return nil
}

func (r *notificationRepo) ListByUser(_ context.Context, userID string, filter repository.NotificationFilter) ([]domain.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.Notification
	for i := len(r.s.data.notifications) - 1; i >= 0; i-- {
		n := r.s.data.notifications[i]
		if n.UserID != userID || (filter.UnreadOnly && n.IsRead) {
			continue
		}
		result = append(result, n)
	}
	if filter.Limit > 0 {
		start := min(max(filter.Offset, 0), len(result))
		end := min(start+filter.Limit, len(result))
		result = result[start:end]
	}
	return result, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	defer r.s.lockWrite(ctx)()
	for i := range r.s.data.notifications {
		n := &r.s.data.notifications[i]
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *notificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, n := range r.s.data.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func copyTicket(t domain.Ticket) domain.Ticket {
	if t.AssignedAgentID != nil {
		agent := *t.AssignedAgentID
		t.AssignedAgentID = &agent
	}
	if t.ResolvedAt != nil {
		resolved := *t.ResolvedAt
		t.ResolvedAt = &resolved
	}
	t.Metadata = maps.Clone(t.Metadata)
	return t
}
