package cert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frutosdouro/conformidade/internal/repo"
)

const dbTimeout = 3 * time.Second

// Repository persiste certificações e os flags one-shot de alerta.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const certColumns = `
	c.id, c.name, c.norm, c.issuing_entity, c.emission_date, c.expiration_date,
	c.responsible_id, COALESCE(u.full_name, ''), COALESCE(u.email, ''),
	c.document_url, c.status, c.alert_sent_60, c.alert_sent_30, c.alert_sent_15,
	c.notes, c.created_at, c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertification(row rowScanner) (Certification, error) {
	var c Certification
	err := row.Scan(&c.ID, &c.Name, &c.Norm, &c.IssuingEntity, &c.EmissionDate, &c.ExpirationDate,
		&c.ResponsibleID, &c.ResponsibleName, &c.ResponsibleEmail,
		&c.DocumentURL, &c.Status, &c.AlertSent60, &c.AlertSent30, &c.AlertSent15,
		&c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListFilter restringe a listagem de certificações.
type ListFilter struct {
	Status string
	Search string
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Certification, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+certColumns+`
		FROM certifications c
		LEFT JOIN users u ON u.id = c.responsible_id
		WHERE ($1 = '' OR c.status = $1)
		  AND ($2 = '' OR c.name ILIKE '%' || $2 || '%' OR c.norm ILIKE '%' || $2 || '%')
		ORDER BY c.expiration_date
	`, f.Status, f.Search)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	var certs []Certification
	for rows.Next() {
		c, err := scanCertification(rows)
		if err != nil {
			return nil, repo.Classify(err)
		}
		certs = append(certs, c)
	}
	return certs, repo.Classify(rows.Err())
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Certification, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+certColumns+`
		FROM certifications c
		LEFT JOIN users u ON u.id = c.responsible_id
		WHERE c.id = $1
	`, id)

	c, err := scanCertification(row)
	if err != nil {
		return Certification{}, repo.Classify(err)
	}
	return c, nil
}

// InsertParams carrega os campos de criação de uma certificação.
type InsertParams struct {
	Name           string
	Norm           string
	IssuingEntity  string
	EmissionDate   time.Time
	ExpirationDate time.Time
	ResponsibleID  uuid.UUID
	Notes          string
	Status         string
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (Certification, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO certifications (name, norm, issuing_entity, emission_date, expiration_date, responsible_id, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, p.Name, p.Norm, p.IssuingEntity, p.EmissionDate, p.ExpirationDate, p.ResponsibleID, p.Notes, p.Status).Scan(&id)
	if err != nil {
		return Certification{}, repo.Classify(err)
	}
	return r.Get(ctx, id)
}

// UpdateParams atualiza apenas os campos não-nulos.
type UpdateParams struct {
	Name           *string
	Norm           *string
	IssuingEntity  *string
	EmissionDate   *time.Time
	ExpirationDate *time.Time
	ResponsibleID  *uuid.UUID
	Notes          *string
	Status         *string
	DocumentURL    *string
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Certification, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE certifications SET
			name            = COALESCE($2, name),
			norm            = COALESCE($3, norm),
			issuing_entity  = COALESCE($4, issuing_entity),
			emission_date   = COALESCE($5, emission_date),
			expiration_date = COALESCE($6, expiration_date),
			responsible_id  = COALESCE($7, responsible_id),
			notes           = COALESCE($8, notes),
			status          = COALESCE($9, status),
			document_url    = COALESCE($10, document_url),
			updated_at      = now()
		WHERE id = $1
	`, id, p.Name, p.Norm, p.IssuingEntity, p.EmissionDate, p.ExpirationDate,
		p.ResponsibleID, p.Notes, p.Status, p.DocumentURL)
	if err != nil {
		return Certification{}, repo.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return Certification{}, repo.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM certifications WHERE id = $1`, id)
	if err != nil {
		return repo.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ListForSweep devolve o universo da varredura de vencimentos.
func (r *Repository) ListForSweep(ctx context.Context) ([]Certification, error) {
	return r.List(ctx, ListFilter{})
}

// ClaimAlertFlag liga o flag do limiar de forma atômica e informa se esta
// chamada foi a vencedora. Duas varreduras concorrentes observam o mesmo
// flag desligado, mas só uma recebe true aqui.
func (r *Repository) ClaimAlertFlag(ctx context.Context, id uuid.UUID, threshold int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var column string
	switch threshold {
	case 60:
		column = "alert_sent_60"
	case 30:
		column = "alert_sent_30"
	case 15:
		column = "alert_sent_15"
	default:
		return false, fmt.Errorf("cert: limiar de alerta desconhecido: %d", threshold)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE certifications
		SET `+column+` = TRUE, updated_at = now()
		WHERE id = $1 AND `+column+` = FALSE
	`, id)
	if err != nil {
		return false, repo.Classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

// RefreshStatuses regrava o campo status derivado da data. O marcador manual
// pending_renewal é preservado enquanto o prazo não vence. Só a varredura
// chama isto; leituras nunca escrevem.
func (r *Repository) RefreshStatuses(ctx context.Context, today time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE certifications SET
			status = CASE
				WHEN expiration_date < $1::date THEN 'expired'
				WHEN expiration_date <= $1::date + 15 THEN 'expiring_soon'
				ELSE 'current'
			END,
			updated_at = now()
		WHERE NOT (status = 'pending_renewal' AND expiration_date >= $1::date)
		  AND status <> CASE
				WHEN expiration_date < $1::date THEN 'expired'
				WHEN expiration_date <= $1::date + 15 THEN 'expiring_soon'
				ELSE 'current'
			END
	`, midnight(today))
	if err != nil {
		return 0, repo.Classify(err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus alimenta o painel com totais por estado.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM certifications GROUP BY status`)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, repo.Classify(err)
		}
		counts[status] = n
	}
	return counts, repo.Classify(rows.Err())
}
