package audittrail

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frutosdouro/conformidade/internal/repo"
)

const dbTimeout = 3 * time.Second

// Repository persiste e consulta a tabela audit_log.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var changes []byte
	if len(e.Changes) > 0 {
		var err error
		changes, err = json.Marshal(e.Changes)
		if err != nil {
			return err
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (user_id, action, entity_type, entity_id, changes, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ActorID, e.Action, e.EntityType, e.EntityID, changes, e.IP, e.UserAgent)
	return repo.Classify(err)
}

// ListFilter restringe a listagem da trilha.
type ListFilter struct {
	ActorID    *uuid.UUID
	EntityType string
	Action     string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// List devolve a página pedida, da entrada mais recente para a mais antiga,
// e o total de entradas que casam com o filtro.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Record, int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	const where = `
		WHERE ($1::uuid IS NULL OR l.user_id = $1)
		  AND ($2 = '' OR l.entity_type = $2)
		  AND ($3 = '' OR l.action = $3)
		  AND ($4::timestamptz IS NULL OR l.created_at >= $4)
		  AND ($5::timestamptz IS NULL OR l.created_at <= $5)
	`

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM audit_log l`+where,
		f.ActorID, f.EntityType, f.Action, f.Since, f.Until,
	).Scan(&total)
	if err != nil {
		return nil, 0, repo.Classify(err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.user_id, COALESCE(u.full_name, ''), l.action, l.entity_type,
		       l.entity_id, l.changes, l.ip_address, l.user_agent, l.created_at
		FROM audit_log l
		LEFT JOIN users u ON u.id = l.user_id
	`+where+`
		ORDER BY l.created_at DESC
		LIMIT $6 OFFSET $7
	`, f.ActorID, f.EntityType, f.Action, f.Since, f.Until, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, repo.Classify(err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			changes []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.ActorName, &rec.Action, &rec.EntityType,
			&rec.EntityID, &changes, &rec.IP, &rec.UserAgent, &rec.CreatedAt); err != nil {
			return nil, 0, repo.Classify(err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &rec.Changes); err != nil {
				return nil, 0, err
			}
		}
		records = append(records, rec)
	}
	return records, total, repo.Classify(rows.Err())
}
