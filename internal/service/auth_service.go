package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/auth"
	"github.com/frutosdouro/conformidade/internal/repo"
	"github.com/frutosdouro/conformidade/internal/util"
)

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrAccountDisabled indica conta desativada.
	ErrAccountDisabled = errors.New("conta desativada")
	// ErrRefreshInvalid indica refresh token inválido ou expirado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
)

type authRepository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error)
	GetUserByUsername(ctx context.Context, username string) (repo.User, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.TokenRefresh, error)
	InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.TokenRefresh, error)
	InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, keepHash string) error
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra regras de autenticação e sessões.
type AuthService struct {
	repo       authRepository
	redis      redisCommander
	jwt        *auth.JWTManager
	trail      audittrail.Recorder
	refreshTTL time.Duration
}

// NewAuthService cria novo serviço. redisClient pode ser nil; nesse caso a
// checagem de sessão fica só no banco.
func NewAuthService(r authRepository, redisClient *redis.Client, jwtMgr *auth.JWTManager, trail audittrail.Recorder, refreshTTL time.Duration) *AuthService {
	svc := &AuthService{repo: r, jwt: jwtMgr, trail: trail, refreshTTL: refreshTTL}
	if redisClient != nil {
		svc.redis = redisClient
	}
	return svc
}

// JWT expõe gerenciador de JWT (útil em middlewares).
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// LoginResult representa retorno padrão de autenticações.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	Subject       uuid.UUID
	Role          string
	Profile       repo.User
	RefreshExpiry time.Time
}

const sessionKeyPrefix = "session:refresh:"

// Login autentica por usuário e senha. Erros de credencial e de conta nunca
// distinguem "usuário inexistente" de "senha errada" para quem chama.
func (s *AuthService) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	user, err := s.repo.GetUserByUsername(ctx, util.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login: usuário não encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.PasswordHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: verificação de senha falhou")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Msg("login: senha inválida")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(user.ID),
		Action:     audittrail.ActionLogin,
		EntityType: "session",
		EntityID:   audittrail.Ref(user.ID),
		IP:         ip,
		UserAgent:  userAgent,
		Changes: map[string]audittrail.FieldChange{
			"username": {New: user.Username},
		},
	})
	return result, nil
}

// Refresh troca refresh token válido por um par novo, revogando o anterior.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	hash := auth.HashRefreshToken(rawToken)
	record, err := s.repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if record.Revoked || time.Now().UTC().After(record.ExpiresAt) {
		return nil, ErrRefreshInvalid
	}

	if s.redis != nil {
		status, err := s.redis.Get(ctx, sessionKeyPrefix+hash).Result()
		if err == redis.Nil || (err == nil && status != "active") {
			return nil, ErrRefreshInvalid
		}
		if err != nil && err != redis.Nil {
			return nil, err
		}
	}

	user, err := s.repo.GetUserByID(ctx, record.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	// Revoga o token anterior (banco + Redis).
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, sessionKeyPrefix+hash).Err(); err != nil && err != redis.Nil {
			return nil, err
		}
	}

	return result, nil
}

// Logout revoga o refresh token atual.
func (s *AuthService) Logout(ctx context.Context, subject uuid.UUID, rawToken, ip string) error {
	if rawToken != "" {
		hash := auth.HashRefreshToken(rawToken)
		if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if s.redis != nil {
			if err := s.redis.Del(ctx, sessionKeyPrefix+hash).Err(); err != nil && err != redis.Nil {
				return err
			}
		}
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(subject),
		Action:     audittrail.ActionLogout,
		EntityType: "session",
		EntityID:   audittrail.Ref(subject),
		IP:         ip,
	})
	return nil
}

// GetMe retorna o perfil completo do sujeito autenticado.
func (s *AuthService) GetMe(ctx context.Context, subject uuid.UUID) (repo.User, error) {
	return s.repo.GetUserByID(ctx, subject)
}

func (s *AuthService) issueTokens(ctx context.Context, user repo.User) (*LoginResult, error) {
	token, _, err := s.jwt.GenerateAccessToken(user.ID.String(), user.RoleName)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expires := util.Now().Add(s.refreshTTL)
	if _, err := s.repo.InsertRefreshToken(ctx, repo.InsertRefreshTokenParams{
		ID:        uuid.New(),
		Subject:   user.ID,
		TokenHash: refreshHash,
		ExpiresAt: expires,
		CreatedAt: util.Now(),
	}); err != nil {
		return nil, err
	}
	if err := s.repo.InvalidateOtherRefreshTokens(ctx, user.ID, refreshHash); err != nil {
		return nil, err
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, sessionKeyPrefix+refreshHash, "active", time.Until(expires)).Err(); err != nil {
			return nil, err
		}
	}

	return &LoginResult{
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Subject:       user.ID,
		Role:          user.RoleName,
		Profile:       user,
		RefreshExpiry: expires,
	}, nil
}
