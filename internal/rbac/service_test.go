package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/repo"
)

type stubStore struct {
	getUserFn       func(ctx context.Context, id uuid.UUID) (repo.User, error)
	getModuleFn     func(ctx context.Context, name string) (repo.Module, error)
	getGrantFn      func(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error)
	listGrantsFn    func(ctx context.Context, userID uuid.UUID) ([]repo.ModuleGrant, error)
	listModulesFn   func(ctx context.Context, onlyActive bool) ([]repo.Module, error)
	listRolesFn     func(ctx context.Context) ([]repo.Role, error)
	getRoleFn       func(ctx context.Context, id uuid.UUID) (repo.Role, error)
	insertRoleFn    func(ctx context.Context, name, displayName, description string) (repo.Role, error)
	deleteRoleFn    func(ctx context.Context, id uuid.UUID) error
	listPermsFn     func(ctx context.Context, roleID uuid.UUID) ([]repo.RolePermission, error)
	getPermissionFn func(ctx context.Context, roleID, moduleID uuid.UUID) (repo.RolePermission, error)
	upsertFn        func(ctx context.Context, p repo.RolePermission) (repo.RolePermission, error)
	insertFn        func(ctx context.Context, p repo.RolePermission) (repo.RolePermission, error)
	grantCalls      int
}

// Sem função configurada, usuário e módulo contam como ativos para não
// poluir os testes que só exercitam a linha de permissão.
func (s *stubStore) GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error) {
	if s.getUserFn != nil {
		return s.getUserFn(ctx, id)
	}
	return repo.User{ID: id, IsActive: true}, nil
}

func (s *stubStore) GetModuleByName(ctx context.Context, name string) (repo.Module, error) {
	if s.getModuleFn != nil {
		return s.getModuleFn(ctx, name)
	}
	return repo.Module{ID: uuid.New(), Name: name, IsActive: true}, nil
}

func (s *stubStore) GetGrant(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error) {
	s.grantCalls++
	return s.getGrantFn(ctx, userID, moduleName)
}

func (s *stubStore) ListGrantsByUser(ctx context.Context, userID uuid.UUID) ([]repo.ModuleGrant, error) {
	return s.listGrantsFn(ctx, userID)
}

func (s *stubStore) ListModules(ctx context.Context, onlyActive bool) ([]repo.Module, error) {
	return s.listModulesFn(ctx, onlyActive)
}

func (s *stubStore) ListRoles(ctx context.Context) ([]repo.Role, error) {
	return s.listRolesFn(ctx)
}

func (s *stubStore) GetRole(ctx context.Context, id uuid.UUID) (repo.Role, error) {
	return s.getRoleFn(ctx, id)
}

func (s *stubStore) InsertRole(ctx context.Context, name, displayName, description string) (repo.Role, error) {
	return s.insertRoleFn(ctx, name, displayName, description)
}

func (s *stubStore) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return s.deleteRoleFn(ctx, id)
}

func (s *stubStore) ListPermissionsByRole(ctx context.Context, roleID uuid.UUID) ([]repo.RolePermission, error) {
	return s.listPermsFn(ctx, roleID)
}

func (s *stubStore) GetPermission(ctx context.Context, roleID, moduleID uuid.UUID) (repo.RolePermission, error) {
	return s.getPermissionFn(ctx, roleID, moduleID)
}

func (s *stubStore) UpsertPermission(ctx context.Context, p repo.RolePermission) (repo.RolePermission, error) {
	return s.upsertFn(ctx, p)
}

func (s *stubStore) InsertPermission(ctx context.Context, p repo.RolePermission) (repo.RolePermission, error) {
	return s.insertFn(ctx, p)
}

type stubTrail struct {
	entries []audittrail.Entry
}

func (t *stubTrail) Record(ctx context.Context, e audittrail.Entry) {
	t.entries = append(t.entries, e)
}

func newService(store *stubStore, trail *stubTrail) *Service {
	return NewService(store, nil, trail, zerolog.Nop())
}

func TestCanDeniesWithoutPermissionRow(t *testing.T) {
	store := &stubStore{
		getGrantFn: func(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error) {
			return repo.RolePermission{}, repo.ErrNotFound
		},
	}
	svc := newService(store, &stubTrail{})

	ok, err := svc.Can(context.Background(), uuid.New(), "certifications", ActionView)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if ok {
		t.Fatal("par sem linha de permissão deveria negar")
	}
}

func TestCanConsultsTheGrantedFlag(t *testing.T) {
	grant := repo.RolePermission{CanView: true, CanExport: true}
	store := &stubStore{
		getGrantFn: func(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error) {
			return grant, nil
		},
	}
	svc := newService(store, &stubTrail{})

	cases := []struct {
		action Action
		want   bool
	}{
		{ActionView, true},
		{ActionExport, true},
		{ActionDelete, false},
		{ActionApprove, false},
	}
	for _, tc := range cases {
		got, err := svc.Can(context.Background(), uuid.New(), "reports", tc.action)
		if err != nil {
			t.Fatalf("%s: erro inesperado: %v", tc.action, err)
		}
		if got != tc.want {
			t.Fatalf("%s: esperava %v, obteve %v", tc.action, tc.want, got)
		}
	}
}

func TestCanDeniesUnknownAction(t *testing.T) {
	store := &stubStore{
		getGrantFn: func(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error) {
			return repo.RolePermission{CanView: true, CanCreate: true, CanEdit: true,
				CanDelete: true, CanExport: true, CanApprove: true}, nil
		},
	}
	svc := newService(store, &stubTrail{})

	ok, err := svc.Can(context.Background(), uuid.New(), "audits", Action("publish"))
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if ok {
		t.Fatal("ação desconhecida deve negar mesmo com todos os grants")
	}
}

func TestCanDeniesInactiveUserDespiteGrants(t *testing.T) {
	store := &stubStore{
		getUserFn: func(ctx context.Context, id uuid.UUID) (repo.User, error) {
			return repo.User{ID: id, Username: "jsantos", IsActive: false}, nil
		},
		getGrantFn: func(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error) {
			return repo.RolePermission{CanView: true, CanCreate: true, CanEdit: true,
				CanDelete: true, CanExport: true, CanApprove: true}, nil
		},
	}
	svc := newService(store, &stubTrail{})

	ok, err := svc.Can(context.Background(), uuid.New(), "certifications", ActionView)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if ok {
		t.Fatal("usuário inativo deve negar mesmo com o papel cheio de grants")
	}
	if store.grantCalls != 0 {
		t.Fatal("usuário inativo nem chega a consultar a linha de permissão")
	}
}

func TestCanDeniesInactiveModule(t *testing.T) {
	store := &stubStore{
		getModuleFn: func(ctx context.Context, name string) (repo.Module, error) {
			return repo.Module{ID: uuid.New(), Name: name, IsActive: false}, nil
		},
		getGrantFn: func(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error) {
			return repo.RolePermission{CanView: true}, nil
		},
	}
	svc := newService(store, &stubTrail{})

	ok, err := svc.Can(context.Background(), uuid.New(), "reports", ActionView)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if ok {
		t.Fatal("módulo desativado deve negar")
	}
	if store.grantCalls != 0 {
		t.Fatal("módulo desativado nem chega a consultar a linha de permissão")
	}
}

func TestCanDeniesEmptyIdentity(t *testing.T) {
	svc := newService(&stubStore{}, &stubTrail{})

	if ok, _ := svc.Can(context.Background(), uuid.Nil, "audits", ActionView); ok {
		t.Fatal("usuário nulo deve negar")
	}
	if ok, _ := svc.Can(context.Background(), uuid.New(), "  ", ActionView); ok {
		t.Fatal("módulo vazio deve negar")
	}
}

func TestCanPropagatesStorageFailure(t *testing.T) {
	store := &stubStore{
		getGrantFn: func(ctx context.Context, userID uuid.UUID, moduleName string) (repo.RolePermission, error) {
			return repo.RolePermission{}, repo.ErrUnavailable
		},
	}
	svc := newService(store, &stubTrail{})

	ok, err := svc.Can(context.Background(), uuid.New(), "policies", ActionView)
	if !errors.Is(err, repo.ErrUnavailable) {
		t.Fatalf("esperava ErrUnavailable, obteve %v", err)
	}
	if ok {
		t.Fatal("falha de infraestrutura não pode conceder acesso")
	}
}

func TestGrantPermissionRejectsDuplicatePair(t *testing.T) {
	roleID, moduleID := uuid.New(), uuid.New()
	store := &stubStore{
		getRoleFn: func(ctx context.Context, id uuid.UUID) (repo.Role, error) {
			return repo.Role{ID: roleID, Name: "auditor"}, nil
		},
		listModulesFn: func(ctx context.Context, onlyActive bool) ([]repo.Module, error) {
			return []repo.Module{{ID: moduleID, Name: "audits"}}, nil
		},
		insertFn: func(ctx context.Context, p repo.RolePermission) (repo.RolePermission, error) {
			return repo.RolePermission{}, repo.ErrDuplicate
		},
	}
	svc := newService(store, &stubTrail{})

	_, err := svc.GrantPermission(context.Background(), uuid.New(), repo.RolePermission{
		RoleID: roleID, ModuleID: moduleID, CanView: true,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicata deveria virar ErrValidation, obteve %v", err)
	}
}

func TestSetPermissionRecordsDiffInTrail(t *testing.T) {
	roleID, moduleID := uuid.New(), uuid.New()
	before := repo.RolePermission{ID: uuid.New(), RoleID: roleID, ModuleID: moduleID, CanView: true}
	after := before
	after.CanEdit = true
	after.UpdatedAt = time.Now()

	store := &stubStore{
		getRoleFn: func(ctx context.Context, id uuid.UUID) (repo.Role, error) {
			return repo.Role{ID: roleID, Name: "unit_chief"}, nil
		},
		listModulesFn: func(ctx context.Context, onlyActive bool) ([]repo.Module, error) {
			return []repo.Module{{ID: moduleID, Name: "certifications"}}, nil
		},
		getPermissionFn: func(ctx context.Context, rID, mID uuid.UUID) (repo.RolePermission, error) {
			return before, nil
		},
		upsertFn: func(ctx context.Context, p repo.RolePermission) (repo.RolePermission, error) {
			return after, nil
		},
	}
	trail := &stubTrail{}
	svc := newService(store, trail)

	if _, err := svc.SetPermission(context.Background(), uuid.New(), after); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	if len(trail.entries) != 1 {
		t.Fatalf("esperava 1 entrada na trilha, obteve %d", len(trail.entries))
	}
	e := trail.entries[0]
	if e.EntityType != "role_permission" || e.Action != audittrail.ActionUpdate {
		t.Fatalf("entrada inesperada: %+v", e)
	}
	change, ok := e.Changes["can_edit"]
	if !ok {
		t.Fatal("diff deveria registrar can_edit")
	}
	if change.Old != false || change.New != true {
		t.Fatalf("diff de can_edit inesperado: %+v", change)
	}
	if _, ok := e.Changes["can_view"]; ok {
		t.Fatal("campo sem mudança não deveria entrar no diff")
	}
}

func TestDeleteRoleRefusesSystemRole(t *testing.T) {
	store := &stubStore{
		getRoleFn: func(ctx context.Context, id uuid.UUID) (repo.Role, error) {
			return repo.Role{ID: id, Name: "admin", IsSystem: true}, nil
		},
	}
	svc := newService(store, &stubTrail{})

	err := svc.DeleteRole(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("esperava ErrValidation, obteve %v", err)
	}
}

func TestMatrixFillsMissingPairsWithDeniedGrants(t *testing.T) {
	roleID := uuid.New()
	modA := repo.Module{ID: uuid.New(), Name: "dashboard", DisplayOrder: 1}
	modB := repo.Module{ID: uuid.New(), Name: "admin", DisplayOrder: 6}

	store := &stubStore{
		getRoleFn: func(ctx context.Context, id uuid.UUID) (repo.Role, error) {
			return repo.Role{ID: roleID, Name: "user"}, nil
		},
		listModulesFn: func(ctx context.Context, onlyActive bool) ([]repo.Module, error) {
			return []repo.Module{modA, modB}, nil
		},
		listPermsFn: func(ctx context.Context, rID uuid.UUID) ([]repo.RolePermission, error) {
			return []repo.RolePermission{{RoleID: roleID, ModuleID: modA.ID, CanView: true}}, nil
		},
	}
	svc := newService(store, &stubTrail{})

	matrix, err := svc.Matrix(context.Background(), roleID)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if len(matrix) != 2 {
		t.Fatalf("esperava 2 linhas, obteve %d", len(matrix))
	}
	if !matrix[0].Grants.CanView {
		t.Fatal("par existente deveria manter can_view")
	}
	if matrix[1].Grants.CanView || matrix[1].Grants.CanApprove {
		t.Fatal("par ausente deveria negar todos os grants")
	}
}

func TestAccessibleModulesKeepsDisplayOrder(t *testing.T) {
	ordered := []repo.ModuleGrant{
		{Module: repo.Module{Name: "dashboard", DisplayOrder: 1}},
		{Module: repo.Module{Name: "certifications", DisplayOrder: 2}},
		{Module: repo.Module{Name: "reports", DisplayOrder: 5}},
	}
	store := &stubStore{
		listGrantsFn: func(ctx context.Context, userID uuid.UUID) ([]repo.ModuleGrant, error) {
			return ordered, nil
		},
	}
	svc := newService(store, &stubTrail{})

	got, err := svc.AccessibleModules(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	for i, g := range got {
		if g.Module.Name != ordered[i].Module.Name {
			t.Fatalf("ordem quebrada na posição %d: %s", i, g.Module.Name)
		}
	}
}
