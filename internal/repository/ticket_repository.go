package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

// TicketFilter narrows ticket listings. Zero values mean "any".
type TicketFilter struct {
	Statuses      []domain.TicketStatus
	AgentID       *string
	UserID        *string
	Source        *domain.TicketSource
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error)
	CountActiveByAgent(ctx context.Context, agentID string) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, content, status, priority, source, user_id, assigned_agent_id,
               category, metadata, created_at, updated_at, resolved_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, title, content, status, priority, source, user_id, assigned_agent_id,
                             category, metadata, created_at, updated_at, resolved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := persistence.Conn(ctx, r.pool).Exec(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Content,
		string(ticket.Status),
		string(ticket.Priority),
		string(ticket.Source),
		ticket.UserID,
		ticket.AssignedAgentID,
		nullableString(ticket.Category),
		metadataOrEmpty(ticket.Metadata),
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
	)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, content=$2, status=$3, priority=$4, source=$5, assigned_agent_id=$6,
            category=$7, metadata=$8, updated_at=$9, resolved_at=$10
        WHERE id=$11`
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, query,
		ticket.Title,
		ticket.Content,
		string(ticket.Status),
		string(ticket.Priority),
		string(ticket.Source),
		ticket.AssignedAgentID,
		nullableString(ticket.Category),
		metadataOrEmpty(ticket.Metadata),
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.Source != nil {
		args = append(args, string(*filter.Source))
		clauses = append(clauses, fmt.Sprintf("source=$%d", len(args)))
	}
	if filter.UpdatedBefore != nil {
		args = append(args, *filter.UpdatedBefore)
		clauses = append(clauses, fmt.Sprintf("updated_at < $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id`,
		ticketColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM tickets GROUP BY status`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int, len(domain.TicketStatuses))
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, err
		}
		status, err := domain.ParseTicketStatus(raw)
		if err != nil {
			return nil, err
		}
		counts[status] += count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) CountActiveByAgent(ctx context.Context, agentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE assigned_agent_id=$1 AND status = ANY($2)`
	active := make([]string, len(domain.ActiveTicketStatuses))
	for i, status := range domain.ActiveTicketStatuses {
		active[i] = string(status)
	}
	var count int
	if err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query, agentID, active).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// scanTicket reads one row and canonicalizes every enum column.
func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket                domain.Ticket
		status, priority, src string
		category              *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Content,
		&status,
		&priority,
		&src,
		&ticket.UserID,
		&ticket.AssignedAgentID,
		&category,
		&ticket.Metadata,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if ticket.Status, err = domain.ParseTicketStatus(status); err != nil {
		return nil, err
	}
	if ticket.Priority, err = domain.ParseTicketPriority(priority); err != nil {
		return nil, err
	}
	if ticket.Source, err = domain.ParseTicketSource(src); err != nil {
		return nil, err
	}
	if category != nil {
		ticket.Category = *category
	}
	return &ticket, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
