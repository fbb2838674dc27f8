package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

// NotificationFilter narrows a user's notification listing.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationRepository stores per-user notifications. Rows are immutable
// except for the read flag.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ListByUser(ctx context.Context, userID string, filter NotificationFilter) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (id, user_id, type, title, content, response, report_id, ticket_id, score, report_data, is_read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	var reportData any
	if len(n.ReportData) > 0 {
		reportData = string(n.ReportData)
	}
	_, err := persistence.Conn(ctx, r.pool).Exec(ctx, query,
		n.ID,
		n.UserID,
		string(n.Type),
		n.Title,
		n.Content,
		n.Response,
		n.ReportID,
		n.TicketID,
		n.Score,
		reportData,
		n.IsRead,
		n.CreatedAt,
	)
	return err
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, filter NotificationFilter) ([]domain.Notification, error) {
	query := `
        SELECT id, user_id, type, title, content, response, report_id, ticket_id, score, report_data, is_read, created_at
        FROM notifications WHERE user_id=$1`
	if filter.UnreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
	}

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var (
			n          domain.Notification
			kind       string
			reportData []byte
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&kind,
			&n.Title,
			&n.Content,
			&n.Response,
			&n.ReportID,
			&n.TicketID,
			&n.Score,
			&reportData,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(kind)
		n.ReportData = reportData
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	if !validID(id) || !validID(userID) {
		return ErrNotFound
	}
	const query = `UPDATE notifications SET is_read = TRUE WHERE id=$1 AND user_id=$2`
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, query, id, userID)
	if err != nil {
		return notFound(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND is_read = FALSE`
	var count int
	if err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
