package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/repo"
)

type stubUsersRepo struct {
	getFn    func(ctx context.Context, id uuid.UUID) (repo.User, error)
	listFn   func(ctx context.Context, onlyActive bool) ([]repo.User, error)
	insertFn func(ctx context.Context, arg repo.InsertUserParams) (repo.User, error)
	updateFn func(ctx context.Context, id uuid.UUID, arg repo.UpdateUserParams) (repo.User, error)
	deleteFn func(ctx context.Context, id uuid.UUID) error
}

func (s *stubUsersRepo) GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error) {
	return s.getFn(ctx, id)
}

func (s *stubUsersRepo) ListUsers(ctx context.Context, onlyActive bool) ([]repo.User, error) {
	return s.listFn(ctx, onlyActive)
}

func (s *stubUsersRepo) InsertUser(ctx context.Context, arg repo.InsertUserParams) (repo.User, error) {
	return s.insertFn(ctx, arg)
}

func (s *stubUsersRepo) UpdateUser(ctx context.Context, id uuid.UUID, arg repo.UpdateUserParams) (repo.User, error) {
	return s.updateFn(ctx, id, arg)
}

func (s *stubUsersRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.deleteFn(ctx, id)
}

type stubTrail struct {
	entries []audittrail.Entry
}

func (t *stubTrail) Record(ctx context.Context, e audittrail.Entry) {
	t.entries = append(t.entries, e)
}

func TestCreateUserRejectsBadInput(t *testing.T) {
	svc := NewUserService(&stubUsersRepo{}, &stubTrail{})

	cases := []struct {
		name string
		in   CreateUserInput
	}{
		{"username curto", CreateUserInput{Username: "ab", Email: "a@frutosdouro.pt", Password: "segredo123", FullName: "Ana"}},
		{"email inválido", CreateUserInput{Username: "ana.souza", Email: "não-é-email", Password: "segredo123", FullName: "Ana"}},
		{"senha curta", CreateUserInput{Username: "ana.souza", Email: "a@frutosdouro.pt", Password: "curta", FullName: "Ana"}},
		{"sem nome", CreateUserInput{Username: "ana.souza", Email: "a@frutosdouro.pt", Password: "segredo123", FullName: "  "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), uuid.New(), tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("esperava ErrValidation, obteve %v", err)
			}
		})
	}
}

func TestCreateUserHashesPasswordAndOmitsItFromTrail(t *testing.T) {
	var inserted repo.InsertUserParams
	userID := uuid.New()
	store := &stubUsersRepo{
		insertFn: func(ctx context.Context, arg repo.InsertUserParams) (repo.User, error) {
			inserted = arg
			return repo.User{ID: userID, Username: arg.Username, Email: arg.Email, FullName: arg.FullName, IsActive: arg.IsActive}, nil
		},
	}
	trail := &stubTrail{}
	svc := NewUserService(store, trail)

	_, err := svc.Create(context.Background(), uuid.New(), CreateUserInput{
		Username: "Ana.Souza",
		Email:    "ANA@frutosdouro.pt",
		Password: "segredo123",
		FullName: "Ana Souza",
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	if inserted.Username != "ana.souza" || inserted.Email != "ana@frutosdouro.pt" {
		t.Fatalf("entrada deveria ser normalizada: %+v", inserted)
	}
	if inserted.PasswordHash == "segredo123" || inserted.PasswordHash == "" {
		t.Fatal("senha deveria ser armazenada como hash")
	}

	e := trail.entries[0]
	for field := range e.Changes {
		if field == "password_hash" || field == "password" {
			t.Fatal("trilha nunca pode conter credenciais")
		}
	}
}

func TestCreateUserMapsDuplicateToValidation(t *testing.T) {
	store := &stubUsersRepo{
		insertFn: func(ctx context.Context, arg repo.InsertUserParams) (repo.User, error) {
			return repo.User{}, repo.ErrDuplicate
		},
	}
	svc := NewUserService(store, &stubTrail{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateUserInput{
		Username: "ana.souza", Email: "ana@frutosdouro.pt", Password: "segredo123", FullName: "Ana",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicata deveria virar ErrValidation, obteve %v", err)
	}
}

func TestDeleteUserBlockedWhileReferenced(t *testing.T) {
	id := uuid.New()
	store := &stubUsersRepo{
		getFn: func(ctx context.Context, uid uuid.UUID) (repo.User, error) {
			return repo.User{ID: id, Username: "ana.souza"}, nil
		},
		deleteFn: func(ctx context.Context, uid uuid.UUID) error {
			return repo.ErrReferenced
		},
	}
	svc := NewUserService(store, &stubTrail{})

	err := svc.Delete(context.Background(), uuid.New(), id)
	if !errors.Is(err, ErrUserReferenced) {
		t.Fatalf("esperava ErrUserReferenced, obteve %v", err)
	}
}

func TestDeleteUserRefusesSelf(t *testing.T) {
	svc := NewUserService(&stubUsersRepo{}, &stubTrail{})
	id := uuid.New()

	if err := svc.Delete(context.Background(), id, id); !errors.Is(err, ErrValidation) {
		t.Fatalf("esperava ErrValidation, obteve %v", err)
	}
}
