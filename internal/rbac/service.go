package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/repo"
)

var (
	// ErrValidation indica entrada inválida em operações administrativas.
	ErrValidation = errors.New("dados inválidos")
)

const (
	cacheVersionKey = "rbac:ver"
	cacheTTL        = 5 * time.Minute
)

// Store é a camada de dados exigida pelo resolvedor de permissões.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error)
	GetModuleByName(ctx context.Context, name string) (repo.Module, error)
	GetGrant(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error)
	ListGrantsByUser(ctx context.Context, userID uuid.UUID) ([]repo.ModuleGrant, error)
	ListModules(ctx context.Context, onlyActive bool) ([]repo.Module, error)
	ListRoles(ctx context.Context) ([]repo.Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (repo.Role, error)
	InsertRole(ctx context.Context, name, displayName, description string) (repo.Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	ListPermissionsByRole(ctx context.Context, roleID uuid.UUID) ([]repo.RolePermission, error)
	GetPermission(ctx context.Context, roleID, moduleID uuid.UUID) (repo.RolePermission, error)
	UpsertPermission(ctx context.Context, p repo.RolePermission) (repo.RolePermission, error)
	InsertPermission(ctx context.Context, p repo.RolePermission) (repo.RolePermission, error)
}

// Service resolve permissões e administra papéis e a matriz de grants.
type Service struct {
	store Store
	cache *redis.Client
	trail audittrail.Recorder
	log   zerolog.Logger
}

func NewService(store Store, cache *redis.Client, trail audittrail.Recorder, log zerolog.Logger) *Service {
	return &Service{store: store, cache: cache, trail: trail, log: log}
}

// Can decide se o usuário pode executar a ação no módulo. A decisão nega por
// padrão: usuário inexistente ou inativo, módulo inativo, par sem linha de
// permissão e ação desconhecida resolvem para false sem erro. Erros de
// infraestrutura sobem para o chamador, que também deve negar.
func (s *Service) Can(ctx context.Context, userID uuid.UUID, module string, action Action) (bool, error) {
	module = strings.TrimSpace(module)
	if userID == uuid.Nil || module == "" {
		return false, nil
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !user.IsActive {
		return false, nil
	}

	mod, err := s.store.GetModuleByName(ctx, module)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !mod.IsActive {
		return false, nil
	}

	grant, err := s.store.GetGrant(ctx, userID, module)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return granted(grant, action), nil
}

// AccessibleModules devolve os módulos que o usuário pode ver, na ordem de
// exibição. O resultado fica em cache curto no Redis; mutações na matriz
// invalidam todas as chaves via bump de versão.
func (s *Service) AccessibleModules(ctx context.Context, userID uuid.UUID) ([]repo.ModuleGrant, error) {
	key, ok := s.cacheKey(ctx, userID)
	if ok {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var cached []repo.ModuleGrant
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	grants, err := s.store.ListGrantsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ok {
		if raw, err := json.Marshal(grants); err == nil {
			if err := s.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
				s.log.Warn().Err(err).Msg("rbac: falha ao popular cache de módulos")
			}
		}
	}
	return grants, nil
}

func (s *Service) cacheKey(ctx context.Context, userID uuid.UUID) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	ver, err := s.cache.Get(ctx, cacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false
	}
	return fmt.Sprintf("rbac:grants:v%d:%s", ver, userID), true
}

// invalidateGrants descarta todo o cache de navegação de uma vez.
func (s *Service) invalidateGrants(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, cacheVersionKey).Err(); err != nil {
		s.log.Warn().Err(err).Msg("rbac: falha ao invalidar cache de permissões")
	}
}

// ListModules expõe o catálogo de módulos para a tela de administração.
func (s *Service) ListModules(ctx context.Context, onlyActive bool) ([]repo.Module, error) {
	return s.store.ListModules(ctx, onlyActive)
}

func (s *Service) ListRoles(ctx context.Context) ([]repo.Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (repo.Role, error) {
	return s.store.GetRole(ctx, id)
}

// CreateRole cadastra um papel novo. O nome é normalizado para minúsculas e
// precisa ser único.
func (s *Service) CreateRole(ctx context.Context, actorID uuid.UUID, name, displayName, description string) (repo.Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	displayName = strings.TrimSpace(displayName)
	if name == "" {
		return repo.Role{}, fmt.Errorf("%w: nome do papel é obrigatório", ErrValidation)
	}
	if displayName == "" {
		displayName = name
	}

	role, err := s.store.InsertRole(ctx, name, displayName, strings.TrimSpace(description))
	if err != nil {
		return repo.Role{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionCreate,
		EntityType: "role",
		EntityID:   audittrail.Ref(role.ID),
		Changes: map[string]audittrail.FieldChange{
			"name":         {New: role.Name},
			"display_name": {New: role.DisplayName},
		},
	})
	return role, nil
}

// DeleteRole remove um papel não-sistêmico. Papéis ainda atribuídos a
// usuários são protegidos pela FK e retornam ErrReferenced.
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID uuid.UUID) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: papéis de sistema não podem ser removidos", ErrValidation)
	}

	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionDelete,
		EntityType: "role",
		EntityID:   audittrail.Ref(roleID),
		Changes: map[string]audittrail.FieldChange{
			"name": {Old: role.Name},
		},
	})
	s.invalidateGrants(ctx)
	return nil
}

// Matrix devolve a matriz de permissões de um papel, módulo a módulo. Pares
// sem linha aparecem com todos os grants falsos.
func (s *Service) Matrix(ctx context.Context, roleID uuid.UUID) ([]repo.ModuleGrant, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}

	modules, err := s.store.ListModules(ctx, false)
	if err != nil {
		return nil, err
	}
	perms, err := s.store.ListPermissionsByRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	byModule := make(map[uuid.UUID]repo.RolePermission, len(perms))
	for _, p := range perms {
		byModule[p.ModuleID] = p
	}

	matrix := make([]repo.ModuleGrant, 0, len(modules))
	for _, m := range modules {
		g := byModule[m.ID]
		g.RoleID = roleID
		g.ModuleID = m.ID
		matrix = append(matrix, repo.ModuleGrant{Module: m, Grants: g})
	}
	return matrix, nil
}

// SetPermission grava os seis grants de um par (role, module), criando a
// linha se ainda não existir, e registra o diff na trilha.
func (s *Service) SetPermission(ctx context.Context, actorID uuid.UUID, p repo.RolePermission) (repo.RolePermission, error) {
	role, err := s.store.GetRole(ctx, p.RoleID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.RolePermission{}, fmt.Errorf("%w: papel inexistente", ErrValidation)
		}
		return repo.RolePermission{}, err
	}

	module, err := s.moduleByID(ctx, p.ModuleID)
	if err != nil {
		return repo.RolePermission{}, err
	}

	before, err := s.store.GetPermission(ctx, p.RoleID, p.ModuleID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return repo.RolePermission{}, err
	}

	out, err := s.store.UpsertPermission(ctx, p)
	if err != nil {
		return repo.RolePermission{}, err
	}

	changes := audittrail.Diff(grantSnapshot(before), grantSnapshot(out))
	if changes == nil {
		changes = map[string]audittrail.FieldChange{}
	}
	changes["role"] = audittrail.FieldChange{New: role.Name}
	changes["module"] = audittrail.FieldChange{New: module.Name}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionUpdate,
		EntityType: "role_permission",
		EntityID:   audittrail.Ref(out.ID),
		Changes:    changes,
	})
	s.invalidateGrants(ctx)
	return out, nil
}

// GrantPermission cria a linha do par e rejeita duplicatas, ao contrário de
// SetPermission, que sobrescreve.
func (s *Service) GrantPermission(ctx context.Context, actorID uuid.UUID, p repo.RolePermission) (repo.RolePermission, error) {
	if _, err := s.store.GetRole(ctx, p.RoleID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.RolePermission{}, fmt.Errorf("%w: papel inexistente", ErrValidation)
		}
		return repo.RolePermission{}, err
	}
	if _, err := s.moduleByID(ctx, p.ModuleID); err != nil {
		return repo.RolePermission{}, err
	}

	out, err := s.store.InsertPermission(ctx, p)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return repo.RolePermission{}, fmt.Errorf("%w: par papel/módulo já possui permissões", ErrValidation)
		}
		return repo.RolePermission{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionCreate,
		EntityType: "role_permission",
		EntityID:   audittrail.Ref(out.ID),
		Changes:    audittrail.Diff(nil, grantSnapshot(out)),
	})
	s.invalidateGrants(ctx)
	return out, nil
}

func (s *Service) moduleByID(ctx context.Context, id uuid.UUID) (repo.Module, error) {
	modules, err := s.store.ListModules(ctx, false)
	if err != nil {
		return repo.Module{}, err
	}
	for _, m := range modules {
		if m.ID == id {
			return m, nil
		}
	}
	return repo.Module{}, fmt.Errorf("%w: módulo inexistente", ErrValidation)
}

func grantSnapshot(p repo.RolePermission) map[string]any {
	return map[string]any{
		"can_view":    p.CanView,
		"can_create":  p.CanCreate,
		"can_edit":    p.CanEdit,
		"can_delete":  p.CanDelete,
		"can_export":  p.CanExport,
		"can_approve": p.CanApprove,
	}
}
