package policy

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

// Repository persiste políticas e confirmações de leitura.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const policyColumns = `
	p.id, p.title, p.description, p.content, p.version, p.effective_date,
	p.requires_confirmation, p.is_active,
	(SELECT count(*) FROM policy_confirmations c WHERE c.policy_id = p.id),
	(SELECT count(*) FROM policy_confirmations c WHERE c.policy_id = p.id AND c.confirmed),
	p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (Policy, error) {
	var p Policy
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Content, &p.Version, &p.EffectiveDate,
		&p.RequiresConfirmation, &p.IsActive, &p.TotalConfirmations, &p.Confirmed,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) List(ctx context.Context, onlyActive bool) ([]Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+policyColumns+`
		FROM policies p
		WHERE NOT $1 OR p.is_active
		ORDER BY p.effective_date DESC
	`, onlyActive)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, repo.Classify(err)
		}
		policies = append(policies, p)
	}
	return policies, repo.Classify(rows.Err())
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+policyColumns+`
		FROM policies p
		WHERE p.id = $1
	`, id)

	p, err := scanPolicy(row)
	if err != nil {
		return Policy{}, repo.Classify(err)
	}
	return p, nil
}

// InsertParams carrega os campos de publicação de uma política.
type InsertParams struct {
	Title                string
	Description          string
	Content              string
	Version              string
	EffectiveDate        time.Time
	RequiresConfirmation bool
}

// Insert publica a política e, quando exige ciência, pré-cria uma confirmação
// pendente para cada usuário ativo. Tudo na mesma transação: ou a política
// nasce com a lista completa de pendências, ou não nasce.
func (r *Repository) Insert(ctx context.Context, p InsertParams) (Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id uuid.UUID
	err := db.WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(txCtx, `
			INSERT INTO policies (title, description, content, version, effective_date, requires_confirmation)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, p.Title, p.Description, p.Content, p.Version, p.EffectiveDate, p.RequiresConfirmation).Scan(&id); err != nil {
			return err
		}

		if !p.RequiresConfirmation {
			return nil
		}

		_, err := tx.Exec(txCtx, `
			INSERT INTO policy_confirmations (policy_id, user_id)
			SELECT $1, u.id FROM users u WHERE u.is_active
		`, id)
		return err
	})
	if err != nil {
		return Policy{}, repo.Classify(err)
	}
	return r.Get(ctx, id)
}

// UpdateParams atualiza apenas campos não-nulos.
type UpdateParams struct {
	Title         *string
	Description   *string
	Content       *string
	Version       *string
	EffectiveDate *time.Time
	IsActive      *bool
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE policies SET
			title          = COALESCE($2, title),
			description    = COALESCE($3, description),
			content        = COALESCE($4, content),
			version        = COALESCE($5, version),
			effective_date = COALESCE($6, effective_date),
			is_active      = COALESCE($7, is_active),
			updated_at     = now()
		WHERE id = $1
	`, id, p.Title, p.Description, p.Content, p.Version, p.EffectiveDate, p.IsActive)
	if err != nil {
		return Policy{}, repo.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return Policy{}, repo.ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete remove a política e suas confirmações na mesma transação.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(txCtx, `DELETE FROM policy_confirmations WHERE policy_id = $1`, id); err != nil {
			return repo.Classify(err)
		}
		tag, err := tx.Exec(txCtx, `DELETE FROM policies WHERE id = $1`, id)
		if err != nil {
			return repo.Classify(err)
		}
		if tag.RowsAffected() == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}

func (r *Repository) ListConfirmations(ctx context.Context, policyID uuid.UUID) ([]Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.policy_id, c.user_id, COALESCE(u.full_name, ''), c.confirmed,
		       c.confirmed_at, c.digital_signature, c.ip_address, c.notes, c.created_at
		FROM policy_confirmations c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.policy_id = $1
		ORDER BY u.full_name
	`, policyID)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	var confirmations []Confirmation
	for rows.Next() {
		var c Confirmation
		if err := rows.Scan(&c.ID, &c.PolicyID, &c.UserID, &c.UserName, &c.Confirmed,
			&c.ConfirmedAt, &c.DigitalSignature, &c.IPAddress, &c.Notes, &c.CreatedAt); err != nil {
			return nil, repo.Classify(err)
		}
		confirmations = append(confirmations, c)
	}
	return confirmations, repo.Classify(rows.Err())
}

// Confirm registra a ciência do usuário. O UNIQUE do par garante no máximo
// uma linha; confirmar de novo apenas renova o carimbo de data.
func (r *Repository) Confirm(ctx context.Context, policyID, userID uuid.UUID, signature, ip, notes string) (Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var c Confirmation
	err := r.pool.QueryRow(ctx, `
		INSERT INTO policy_confirmations (policy_id, user_id, confirmed, confirmed_at, digital_signature, ip_address, notes)
		VALUES ($1, $2, TRUE, now(), $3, $4, $5)
		ON CONFLICT (policy_id, user_id) DO UPDATE SET
			confirmed         = TRUE,
			confirmed_at      = now(),
			digital_signature = EXCLUDED.digital_signature,
			ip_address        = EXCLUDED.ip_address,
			notes             = EXCLUDED.notes,
			updated_at        = now()
		RETURNING id, policy_id, user_id, confirmed, confirmed_at, digital_signature, ip_address, notes, created_at
	`, policyID, userID, signature, ip, notes).Scan(
		&c.ID, &c.PolicyID, &c.UserID, &c.Confirmed, &c.ConfirmedAt,
		&c.DigitalSignature, &c.IPAddress, &c.Notes, &c.CreatedAt)
	if err != nil {
		return Confirmation{}, repo.Classify(err)
	}
	return c, nil
}

// CountPendingConfirmations conta pendências de ciência abertas em
// políticas ativas.
func (r *Repository) CountPendingConfirmations(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM policy_confirmations c
		JOIN policies p ON p.id = c.policy_id
		WHERE p.is_active AND p.requires_confirmation AND NOT c.confirmed
	`).Scan(&total)
	if err != nil {
		return 0, repo.Classify(err)
	}
	return total, nil
}

// PendingForUser lista políticas ativas que o usuário ainda não confirmou.
func (r *Repository) PendingForUser(ctx context.Context, userID uuid.UUID) ([]Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+policyColumns+`
		FROM policies p
		JOIN policy_confirmations c ON c.policy_id = p.id
		WHERE p.is_active AND p.requires_confirmation
		  AND c.user_id = $1 AND NOT c.confirmed
		ORDER BY p.effective_date DESC
	`, userID)
	if err != nil {
		return nil, repo.Classify(err)
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, repo.Classify(err)
		}
		policies = append(policies, p)
	}
	return policies, repo.Classify(rows.Err())
}
