package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Queries fornece acesso às tabelas de usuários, papéis e permissões.
type Queries struct {
	pool *pgxpool.Pool
}

// New cria nova instância sobre o pool.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const userColumns = `
	u.id, u.username, u.email, u.password_hash, u.full_name, u.department,
	u.role_id, COALESCE(r.name, ''), u.is_active, u.created_at, u.updated_at
`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.Department, &u.RoleID, &u.RoleName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, Classify(err)
	}
	return u, nil
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := q.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1
	`, id)
	return scanUser(row)
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := q.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE lower(u.username) = lower($1)
	`, username)
	return scanUser(row)
}

func (q *Queries) ListUsers(ctx context.Context, onlyActive bool) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE NOT $1 OR u.is_active
		ORDER BY u.full_name
	`, onlyActive)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, Classify(rows.Err())
}

// InsertUserParams agrupa os campos de criação.
type InsertUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Department   string
	RoleID       *uuid.UUID
	IsActive     bool
}

func (q *Queries) InsertUser(ctx context.Context, arg InsertUserParams) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id uuid.UUID
	err := q.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, department, role_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, arg.Username, arg.Email, arg.PasswordHash, arg.FullName, arg.Department, arg.RoleID, arg.IsActive).Scan(&id)
	if err != nil {
		return User{}, Classify(err)
	}
	return q.GetUserByID(ctx, id)
}

// UpdateUserParams agrupa os campos mutáveis; ponteiro nulo mantém o valor atual.
type UpdateUserParams struct {
	Email        *string
	PasswordHash *string
	FullName     *string
	Department   *string
	RoleID       *uuid.UUID
	IsActive     *bool
}

func (q *Queries) UpdateUser(ctx context.Context, id uuid.UUID, arg UpdateUserParams) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := q.pool.Exec(ctx, `
		UPDATE users SET
			email         = COALESCE($2, email),
			password_hash = COALESCE($3, password_hash),
			full_name     = COALESCE($4, full_name),
			department    = COALESCE($5, department),
			role_id       = COALESCE($6, role_id),
			is_active     = COALESCE($7, is_active),
			updated_at    = now()
		WHERE id = $1
	`, id, arg.Email, arg.PasswordHash, arg.FullName, arg.Department, arg.RoleID, arg.IsActive)
	if err != nil {
		return User{}, Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return User{}, ErrNotFound
	}
	return q.GetUserByID(ctx, id)
}

// DeleteUser remove o usuário; FKs RESTRICT fazem a remoção falhar com
// ErrReferenced enquanto certificações, auditorias ou confirmações o citarem.
func (q *Queries) DeleteUser(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := q.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) CountActiveUsers(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var total int
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM users WHERE is_active`).Scan(&total); err != nil {
		return 0, Classify(err)
	}
	return total, nil
}
