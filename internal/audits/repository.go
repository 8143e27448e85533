package audits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frutosdouro/conformidade/internal/db"
	"github.com/frutosdouro/conformidade/internal/repo"
)

const dbTimeout = 3 * time.Second

// Repository persiste auditorias e não conformidades.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const auditColumns = `
	a.id, a.audit_type, a.scheduled_date, a.executed_date, a.evaluated_area,
	a.responsible_id, COALESCE(u.full_name, ''), a.description, a.status,
	(SELECT count(*) FROM audit_findings f WHERE f.audit_id = a.id),
	(SELECT count(*) FROM audit_findings f WHERE f.audit_id = a.id AND f.status = 'open'),
	a.created_at, a.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudit(row rowScanner) (Audit, error) {
	var a Audit
	err := row.Scan(&a.ID, &a.AuditType, &a.ScheduledDate, &a.ExecutedDate, &a.EvaluatedArea,
		&a.ResponsibleID, &a.ResponsibleName, &a.Description, &a.Status,
		&a.TotalFindings, &a.OpenFindings, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// AuditFilter restringe a listagem de auditorias.
type AuditFilter struct {
	Status    string
	AuditType string
}

func (r *Repository) ListAudits(ctx context.Context, f AuditFilter) ([]Audit, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audits a
		LEFT JOIN users u ON u.id = a.responsible_id
		WHERE ($1 = '' OR a.status = $1)
		  AND ($2 = '' OR a.audit_type = $2)
		ORDER BY a.scheduled_date DESC
	`, f.Status, f.AuditType)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	var audits []Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, repo.Classify(err)
		}
		audits = append(audits, a)
	}
	return audits, repo.Classify(rows.Err())
}

func (r *Repository) GetAudit(ctx context.Context, id uuid.UUID) (Audit, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+auditColumns+`
		FROM audits a
		LEFT JOIN users u ON u.id = a.responsible_id
		WHERE a.id = $1
	`, id)

	a, err := scanAudit(row)
	if err != nil {
		return Audit{}, repo.Classify(err)
	}
	return a, nil
}

// InsertAuditParams carrega os campos de criação de uma auditoria.
type InsertAuditParams struct {
	AuditType     string
	ScheduledDate time.Time
	EvaluatedArea string
	ResponsibleID uuid.UUID
	Description   string
}

func (r *Repository) InsertAudit(ctx context.Context, p InsertAuditParams) (Audit, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO audits (audit_type, scheduled_date, evaluated_area, responsible_id, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.AuditType, p.ScheduledDate, p.EvaluatedArea, p.ResponsibleID, p.Description).Scan(&id)
	if err != nil {
		return Audit{}, repo.Classify(err)
	}
	return r.GetAudit(ctx, id)
}

// UpdateAuditParams atualiza apenas campos não-nulos. ClearExecuted zera a
// data de execução ao reabrir uma auditoria concluída.
type UpdateAuditParams struct {
	AuditType     *string
	ScheduledDate *time.Time
	ExecutedDate  *time.Time
	ClearExecuted bool
	EvaluatedArea *string
	ResponsibleID *uuid.UUID
	Description   *string
	Status        *string
}

func (r *Repository) UpdateAudit(ctx context.Context, id uuid.UUID, p UpdateAuditParams) (Audit, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE audits SET
			audit_type     = COALESCE($2, audit_type),
			scheduled_date = COALESCE($3, scheduled_date),
			executed_date  = CASE WHEN $4 THEN NULL ELSE COALESCE($5, executed_date) END,
			evaluated_area = COALESCE($6, evaluated_area),
			responsible_id = COALESCE($7, responsible_id),
			description    = COALESCE($8, description),
			status         = COALESCE($9, status),
			updated_at     = now()
		WHERE id = $1
	`, id, p.AuditType, p.ScheduledDate, p.ClearExecuted, p.ExecutedDate,
		p.EvaluatedArea, p.ResponsibleID, p.Description, p.Status)
	if err != nil {
		return Audit{}, repo.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return Audit{}, repo.ErrNotFound
	}
	return r.GetAudit(ctx, id)
}

// DeleteAudit remove a auditoria e suas não conformidades na mesma
// transação.
func (r *Repository) DeleteAudit(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM audit_findings WHERE audit_id = $1`, id); err != nil {
			return repo.Classify(err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM audits WHERE id = $1`, id)
		if err != nil {
			return repo.Classify(err)
		}
		if tag.RowsAffected() == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}

const findingColumns = `
	id, audit_id, description, severity, corrective_action, responsible,
	deadline, status, notes, created_at, updated_at`

func scanFinding(row rowScanner) (Finding, error) {
	var f Finding
	err := row.Scan(&f.ID, &f.AuditID, &f.Description, &f.Severity, &f.CorrectiveAction,
		&f.Responsible, &f.Deadline, &f.Status, &f.Notes, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (r *Repository) ListFindings(ctx context.Context, auditID uuid.UUID) ([]Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+findingColumns+`
		FROM audit_findings
		WHERE audit_id = $1
		ORDER BY created_at
	`, auditID)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, repo.Classify(err)
		}
		findings = append(findings, f)
	}
	return findings, repo.Classify(rows.Err())
}

func (r *Repository) GetFinding(ctx context.Context, id uuid.UUID) (Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+findingColumns+`
		FROM audit_findings
		WHERE id = $1
	`, id)

	f, err := scanFinding(row)
	if err != nil {
		return Finding{}, repo.Classify(err)
	}
	return f, nil
}

// InsertFindingParams carrega os campos de criação de uma não conformidade.
type InsertFindingParams struct {
	AuditID          uuid.UUID
	Description      string
	Severity         string
	CorrectiveAction string
	Responsible      string
	Deadline         *time.Time
	Notes            string
}

func (r *Repository) InsertFinding(ctx context.Context, p InsertFindingParams) (Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO audit_findings (audit_id, description, severity, corrective_action, responsible, deadline, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.AuditID, p.Description, p.Severity, p.CorrectiveAction, p.Responsible, p.Deadline, p.Notes).Scan(&id)
	if err != nil {
		return Finding{}, repo.Classify(err)
	}
	return r.GetFinding(ctx, id)
}

// UpdateFindingParams atualiza apenas campos não-nulos.
type UpdateFindingParams struct {
	Description      *string
	Severity         *string
	CorrectiveAction *string
	Responsible      *string
	Deadline         *time.Time
	Status           *string
	Notes            *string
}

func (r *Repository) UpdateFinding(ctx context.Context, id uuid.UUID, p UpdateFindingParams) (Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE audit_findings SET
			description       = COALESCE($2, description),
			severity          = COALESCE($3, severity),
			corrective_action = COALESCE($4, corrective_action),
			responsible       = COALESCE($5, responsible),
			deadline          = COALESCE($6, deadline),
			status            = COALESCE($7, status),
			notes             = COALESCE($8, notes),
			updated_at        = now()
		WHERE id = $1
	`, id, p.Description, p.Severity, p.CorrectiveAction, p.Responsible, p.Deadline, p.Status, p.Notes)
	if err != nil {
		return Finding{}, repo.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return Finding{}, repo.ErrNotFound
	}
	return r.GetFinding(ctx, id)
}

func (r *Repository) DeleteFinding(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_findings WHERE id = $1`, id)
	if err != nil {
		return repo.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// CountAuditsByStatus alimenta o painel.
func (r *Repository) CountAuditsByStatus(ctx context.Context) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM audits GROUP BY status`)
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

// CountOpenFindingsBySeverity alimenta o painel.
func (r *Repository) CountOpenFindingsBySeverity(ctx context.Context) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT severity, count(*) FROM audit_findings WHERE status = 'open' GROUP BY severity
	`)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			severity string
			n        int
		)
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, repo.Classify(err)
		}
		counts[severity] = n
	}
	return counts, repo.Classify(rows.Err())
}
