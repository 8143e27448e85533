package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frutosdouro/conformidade/internal/repo"
)

const dbTimeout = 3 * time.Second

// Repository persiste a caixa de entrada de alertas.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, a Alert) (Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO alerts (alert_type, related_id, title, message, severity, recipient_email, sent, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_read, created_at
	`, a.AlertType, a.RelatedID, a.Title, a.Message, a.Severity, a.RecipientEmail, a.Sent, a.SentAt).Scan(
		&a.ID, &a.IsRead, &a.CreatedAt)
	if err != nil {
		return Alert{}, repo.Classify(err)
	}
	return a, nil
}

// ListFilter restringe a listagem da caixa de entrada.
type ListFilter struct {
	OnlyUnread bool
	Severity   string
	Limit      int
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, alert_type, related_id, title, message, severity, is_read,
		       recipient_email, sent, sent_at, created_at
		FROM alerts
		WHERE (NOT $1 OR NOT is_read)
		  AND ($2 = '' OR severity = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, f.OnlyUnread, f.Severity, f.Limit)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.AlertType, &a.RelatedID, &a.Title, &a.Message, &a.Severity,
			&a.IsRead, &a.RecipientEmail, &a.Sent, &a.SentAt, &a.CreatedAt); err != nil {
			return nil, repo.Classify(err)
		}
		alerts = append(alerts, a)
	}
	return alerts, repo.Classify(rows.Err())
}

func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE alerts SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return repo.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE alerts SET is_read = TRUE WHERE NOT is_read`)
	if err != nil {
		return 0, repo.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) CountUnread(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM alerts WHERE NOT is_read`).Scan(&n); err != nil {
		return 0, repo.Classify(err)
	}
	return n, nil
}
