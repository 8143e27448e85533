package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/auth"
	"github.com/frutosdouro/conformidade/internal/repo"
)

type stubAuthRepo struct {
	users   map[uuid.UUID]repo.User
	byName  map[string]uuid.UUID
	tokens  map[string]repo.TokenRefresh
	revoked map[string]bool
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{
		users:   make(map[uuid.UUID]repo.User),
		byName:  make(map[string]uuid.UUID),
		tokens:  make(map[string]repo.TokenRefresh),
		revoked: make(map[string]bool),
	}
}

func (s *stubAuthRepo) addUser(t *testing.T, username, password string, active bool) repo.User {
	t.Helper()
	hash, err := auth.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := repo.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@frutosdouro.pt",
		PasswordHash: hash,
		FullName:     "Colaborador Teste",
		RoleName:     "auditor",
		IsActive:     active,
	}
	s.users[u.ID] = u
	s.byName[username] = u.ID
	return u
}

func (s *stubAuthRepo) GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error) {
	u, ok := s.users[id]
	if !ok {
		return repo.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (s *stubAuthRepo) GetUserByUsername(ctx context.Context, username string) (repo.User, error) {
	id, ok := s.byName[username]
	if !ok {
		return repo.User{}, repo.ErrNotFound
	}
	return s.users[id], nil
}

func (s *stubAuthRepo) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.TokenRefresh, error) {
	tok, ok := s.tokens[tokenHash]
	if !ok {
		return repo.TokenRefresh{}, repo.ErrNotFound
	}
	tok.Revoked = s.revoked[tokenHash]
	return tok, nil
}

func (s *stubAuthRepo) InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.TokenRefresh, error) {
	tok := repo.TokenRefresh{
		ID: arg.ID, Subject: arg.Subject, TokenHash: arg.TokenHash,
		ExpiresAt: arg.ExpiresAt, CreatedAt: arg.CreatedAt,
	}
	s.tokens[arg.TokenHash] = tok
	return tok, nil
}

func (s *stubAuthRepo) InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, keepHash string) error {
	for hash, tok := range s.tokens {
		if tok.Subject == subject && hash != keepHash {
			s.revoked[hash] = true
		}
	}
	return nil
}

func (s *stubAuthRepo) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	if _, ok := s.tokens[tokenHash]; !ok {
		return repo.ErrNotFound
	}
	s.revoked[tokenHash] = true
	return nil
}

func newAuthService(store *stubAuthRepo, trail *stubTrail) *AuthService {
	jwtMgr := auth.NewJWTManager("chave-de-teste-com-32-caracteres!", 15*time.Minute)
	return NewAuthService(store, nil, jwtMgr, trail, time.Hour)
}

func TestLoginIssuesTokensAndRecordsTrail(t *testing.T) {
	store := newStubAuthRepo()
	user := store.addUser(t, "ana.souza", "segredo123", true)
	trail := &stubTrail{}
	svc := newAuthService(store, trail)

	result, err := svc.Login(context.Background(), "Ana.Souza", "segredo123", "10.0.0.2", "curl/8")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("login deveria emitir par de tokens")
	}
	if result.Role != "auditor" || result.Subject != user.ID {
		t.Fatalf("resultado inesperado: %+v", result)
	}

	claims, err := svc.JWT().ParseAndValidate(result.AccessToken)
	if err != nil {
		t.Fatalf("token emitido deveria validar: %v", err)
	}
	if claims.Role != "auditor" || claims.Subject != user.ID.String() {
		t.Fatalf("claims inesperadas: %+v", claims)
	}

	if len(trail.entries) != 1 || trail.entries[0].Action != "login" {
		t.Fatalf("trilha inesperada: %+v", trail.entries)
	}
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	store := newStubAuthRepo()
	store.addUser(t, "ana.souza", "segredo123", true)
	svc := newAuthService(store, &stubTrail{})

	_, errWrong := svc.Login(context.Background(), "ana.souza", "errada123", "", "")
	_, errUnknown := svc.Login(context.Background(), "ninguem", "segredo123", "", "")

	if !errors.Is(errWrong, ErrInvalidCredentials) || !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("ambos deveriam ser ErrInvalidCredentials: %v / %v", errWrong, errUnknown)
	}
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	store := newStubAuthRepo()
	store.addUser(t, "ana.souza", "segredo123", false)
	svc := newAuthService(store, &stubTrail{})

	_, err := svc.Login(context.Background(), "ana.souza", "segredo123", "", "")
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("esperava ErrAccountDisabled, obteve %v", err)
	}
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	store := newStubAuthRepo()
	store.addUser(t, "ana.souza", "segredo123", true)
	svc := newAuthService(store, &stubTrail{})

	login, err := svc.Login(context.Background(), "ana.souza", "segredo123", "", "")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh deveria emitir token novo")
	}

	// O token antigo foi revogado na rotação.
	if _, err := svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("token rotacionado deveria ser inválido, obteve %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc := newAuthService(newStubAuthRepo(), &stubTrail{})

	if _, err := svc.Refresh(context.Background(), ""); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("esperava ErrRefreshInvalid, obteve %v", err)
	}
	if _, err := svc.Refresh(context.Background(), "token-inventado"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("esperava ErrRefreshInvalid, obteve %v", err)
	}
}
