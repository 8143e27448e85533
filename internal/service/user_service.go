package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/auth"
	"github.com/frutosdouro/conformidade/internal/repo"
	"github.com/frutosdouro/conformidade/internal/util"
)

var (
	// ErrValidation indica entrada inválida na administração de usuários.
	ErrValidation = errors.New("dados inválidos")
	// ErrUserReferenced indica usuário citado por certificações, auditorias
	// ou confirmações; a remoção é bloqueada para preservar o histórico.
	ErrUserReferenced = errors.New("usuário referenciado por outros registros")
)

type usersRepository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error)
	ListUsers(ctx context.Context, onlyActive bool) ([]repo.User, error)
	InsertUser(ctx context.Context, arg repo.InsertUserParams) (repo.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, arg repo.UpdateUserParams) (repo.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// UserService administra o cadastro de colaboradores.
type UserService struct {
	repo  usersRepository
	trail audittrail.Recorder
}

func NewUserService(r usersRepository, trail audittrail.Recorder) *UserService {
	return &UserService{repo: r, trail: trail}
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (repo.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, onlyActive bool) ([]repo.User, error) {
	return s.repo.ListUsers(ctx, onlyActive)
}

// CreateUserInput carrega os campos de cadastro de um colaborador.
type CreateUserInput struct {
	Username   string
	Email      string
	Password   string
	FullName   string
	Department string
	RoleID     *uuid.UUID
	IsActive   bool
}

// Create valida, normaliza e cadastra o colaborador. Usuário e e-mail
// duplicados viram erro de validação com a restrição violada nomeada.
func (s *UserService) Create(ctx context.Context, actorID uuid.UUID, in CreateUserInput) (repo.User, error) {
	username := util.NormalizeUsername(in.Username)
	email := util.NormalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	if !util.IsValidUsername(username) {
		return repo.User{}, fmt.Errorf("%w: nome de usuário inválido", ErrValidation)
	}
	if !util.IsValidEmail(email) {
		return repo.User{}, fmt.Errorf("%w: e-mail inválido", ErrValidation)
	}
	if len(in.Password) < 8 {
		return repo.User{}, fmt.Errorf("%w: senha deve ter pelo menos 8 caracteres", ErrValidation)
	}
	if fullName == "" {
		return repo.User{}, fmt.Errorf("%w: nome completo é obrigatório", ErrValidation)
	}

	hash, err := auth.Hash(in.Password)
	if err != nil {
		return repo.User{}, err
	}

	user, err := s.repo.InsertUser(ctx, repo.InsertUserParams{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Department:   strings.TrimSpace(in.Department),
		RoleID:       in.RoleID,
		IsActive:     in.IsActive,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return repo.User{}, fmt.Errorf("%w: usuário ou e-mail já cadastrado", ErrValidation)
		}
		if errors.Is(err, repo.ErrReferenced) {
			return repo.User{}, fmt.Errorf("%w: papel inexistente", ErrValidation)
		}
		return repo.User{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionCreate,
		EntityType: "user",
		EntityID:   audittrail.Ref(user.ID),
		Changes:    audittrail.Diff(nil, userSnapshot(user)),
	})
	return user, nil
}

// UpdateUserInput carrega alterações parciais; campos nil ficam como estão.
type UpdateUserInput struct {
	Email      *string
	Password   *string
	FullName   *string
	Department *string
	RoleID     *uuid.UUID
	IsActive   *bool
}

func (s *UserService) Update(ctx context.Context, actorID, id uuid.UUID, in UpdateUserInput) (repo.User, error) {
	before, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return repo.User{}, err
	}

	params := repo.UpdateUserParams{
		FullName:   in.FullName,
		Department: in.Department,
		RoleID:     in.RoleID,
		IsActive:   in.IsActive,
	}

	if in.Email != nil {
		email := util.NormalizeEmail(*in.Email)
		if !util.IsValidEmail(email) {
			return repo.User{}, fmt.Errorf("%w: e-mail inválido", ErrValidation)
		}
		params.Email = &email
	}
	if in.Password != nil {
		if len(*in.Password) < 8 {
			return repo.User{}, fmt.Errorf("%w: senha deve ter pelo menos 8 caracteres", ErrValidation)
		}
		hash, err := auth.Hash(*in.Password)
		if err != nil {
			return repo.User{}, err
		}
		params.PasswordHash = &hash
	}

	after, err := s.repo.UpdateUser(ctx, id, params)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return repo.User{}, fmt.Errorf("%w: e-mail já cadastrado", ErrValidation)
		}
		if errors.Is(err, repo.ErrReferenced) {
			return repo.User{}, fmt.Errorf("%w: papel inexistente", ErrValidation)
		}
		return repo.User{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionUpdate,
		EntityType: "user",
		EntityID:   audittrail.Ref(id),
		Changes:    audittrail.Diff(userSnapshot(before), userSnapshot(after)),
	})
	return after, nil
}

// Delete remove o colaborador. Quem já responde por certificações,
// auditorias ou confirmações não pode ser removido; desative a conta.
func (s *UserService) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return fmt.Errorf("%w: não é possível remover a própria conta", ErrValidation)
	}

	before, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, repo.ErrReferenced) {
			return ErrUserReferenced
		}
		return err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionDelete,
		EntityType: "user",
		EntityID:   audittrail.Ref(id),
		Changes: map[string]audittrail.FieldChange{
			"username": {Old: before.Username},
		},
	})
	return nil
}

// userSnapshot nunca inclui o hash de senha: trocas de credencial aparecem
// na trilha apenas como a operação, sem valores.
func userSnapshot(u repo.User) map[string]any {
	return map[string]any{
		"username":   u.Username,
		"email":      u.Email,
		"full_name":  u.FullName,
		"department": u.Department,
		"role":       u.RoleName,
		"is_active":  u.IsActive,
	}
}
