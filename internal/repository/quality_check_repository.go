package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

// QualityCheckRepository stores quality evaluation results.
type QualityCheckRepository interface {
	Create(ctx context.Context, check *domain.QualityCheck) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.QualityCheck, error)
	ListScores(ctx context.Context) ([]float64, error)
}

type qualityCheckRepository struct {
	pool *pgxpool.Pool
}

// NewQualityCheckRepository builds repository.
func NewQualityCheckRepository(pool *pgxpool.Pool) QualityCheckRepository {
	return &qualityCheckRepository{pool: pool}
}

func (r *qualityCheckRepository) Create(ctx context.Context, check *domain.QualityCheck) error {
	const query = `
        INSERT INTO quality_checks (id, ticket_id, score, base_score, external_score, fallback_used, comments, checked_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	comments := check.Comments
	if comments == nil {
		comments = []string{}
	}
	_, err := persistence.Conn(ctx, r.pool).Exec(ctx, query,
		check.ID,
		check.TicketID,
		check.Score,
		check.BaseScore,
		check.ExternalScore,
		check.FallbackUsed,
		comments,
		check.CheckedAt,
	)
	return err
}

func (r *qualityCheckRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.QualityCheck, error) {
	const query = `
        SELECT id, ticket_id, score, base_score, external_score, fallback_used, comments, checked_at
        FROM quality_checks WHERE ticket_id=$1 ORDER BY checked_at ASC, id`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QualityCheck
	for rows.Next() {
		var check domain.QualityCheck
		if err := rows.Scan(
			&check.ID,
			&check.TicketID,
			&check.Score,
			&check.BaseScore,
			&check.ExternalScore,
			&check.FallbackUsed,
			&check.Comments,
			&check.CheckedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, check)
	}
	return result, rows.Err()
}

func (r *qualityCheckRepository) ListScores(ctx context.Context) ([]float64, error) {
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, `SELECT score FROM quality_checks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}
