package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InsertRefreshTokenParams agrupa os campos do refresh token persistido.
type InsertRefreshTokenParams struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (q *Queries) InsertRefreshToken(ctx context.Context, arg InsertRefreshTokenParams) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.pool.Exec(ctx, `
		INSERT INTO tokens_refresh (id, subject, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, arg.ID, arg.Subject, arg.TokenHash, arg.ExpiresAt, arg.CreatedAt)
	if err != nil {
		return TokenRefresh{}, Classify(err)
	}
	return TokenRefresh{
		ID:        arg.ID,
		Subject:   arg.Subject,
		TokenHash: arg.TokenHash,
		ExpiresAt: arg.ExpiresAt,
		CreatedAt: arg.CreatedAt,
	}, nil
}

func (q *Queries) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t TokenRefresh
	err := q.pool.QueryRow(ctx, `
		SELECT id, subject, token_hash, expires_at, revoked, created_at
		FROM tokens_refresh
		WHERE token_hash = $1
	`, tokenHash).Scan(&t.ID, &t.Subject, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return TokenRefresh{}, Classify(err)
	}
	return t, nil
}

func (q *Queries) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.pool.Exec(ctx, `
		UPDATE tokens_refresh SET revoked = TRUE WHERE token_hash = $1
	`, tokenHash)
	return Classify(err)
}

// InvalidateOtherRefreshTokens revoga todos os tokens do sujeito exceto o atual.
func (q *Queries) InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, keepHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.pool.Exec(ctx, `
		UPDATE tokens_refresh SET revoked = TRUE
		WHERE subject = $1 AND token_hash <> $2
	`, subject, keepHash)
	return Classify(err)
}
