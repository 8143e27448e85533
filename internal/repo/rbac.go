package repo

import (
	"context"

	"github.com/google/uuid"
)

func (q *Queries) ListRoles(ctx context.Context) ([]Role, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.pool.Query(ctx, `
		SELECT id, name, display_name, description, is_system, created_at
		FROM roles
		ORDER BY created_at
	`)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.IsSystem, &r.CreatedAt); err != nil {
			return nil, Classify(err)
		}
		roles = append(roles, r)
	}
	return roles, Classify(rows.Err())
}

func (q *Queries) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var r Role
	err := q.pool.QueryRow(ctx, `
		SELECT id, name, display_name, description, is_system, created_at
		FROM roles WHERE id = $1
	`, id).Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.IsSystem, &r.CreatedAt)
	if err != nil {
		return Role{}, Classify(err)
	}
	return r, nil
}

func (q *Queries) InsertRole(ctx context.Context, name, displayName, description string) (Role, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id uuid.UUID
	err := q.pool.QueryRow(ctx, `
		INSERT INTO roles (name, display_name, description)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, displayName, description).Scan(&id)
	if err != nil {
		return Role{}, Classify(err)
	}
	return q.GetRole(ctx, id)
}

// DeleteRole recusa papéis de sistema.
func (q *Queries) DeleteRole(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := q.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND NOT is_system`, id)
	if err != nil {
		return Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) ListModules(ctx context.Context, onlyActive bool) ([]Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.pool.Query(ctx, `
		SELECT id, name, display_name, is_active, display_order
		FROM modules
		WHERE NOT $1 OR is_active
		ORDER BY display_order
	`, onlyActive)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayName, &m.IsActive, &m.DisplayOrder); err != nil {
			return nil, Classify(err)
		}
		modules = append(modules, m)
	}
	return modules, Classify(rows.Err())
}

// GetModuleByName busca o módulo pelo nome técnico.
func (q *Queries) GetModuleByName(ctx context.Context, name string) (Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var m Module
	err := q.pool.QueryRow(ctx, `
		SELECT id, name, display_name, is_active, display_order
		FROM modules WHERE name = $1
	`, name).Scan(&m.ID, &m.Name, &m.DisplayName, &m.IsActive, &m.DisplayOrder)
	if err != nil {
		return Module{}, Classify(err)
	}
	return m, nil
}

// GetGrant resolve, em um único join, a linha de permissão do papel do usuário
// para o módulo informado. pgx.ErrNoRows vira ErrNotFound: negação por padrão.
func (q *Queries) GetGrant(ctx context.Context, userID uuid.UUID, moduleName string) (RolePermission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p RolePermission
	err := q.pool.QueryRow(ctx, `
		SELECT p.id, p.role_id, p.module_id, p.can_view, p.can_create, p.can_edit,
		       p.can_delete, p.can_export, p.can_approve, p.updated_at
		FROM users u
		JOIN roles r ON r.id = u.role_id
		JOIN role_permissions p ON p.role_id = r.id
		JOIN modules m ON m.id = p.module_id
		WHERE u.id = $1 AND u.is_active AND m.name = $2 AND m.is_active
	`, userID, moduleName).Scan(&p.ID, &p.RoleID, &p.ModuleID, &p.CanView, &p.CanCreate,
		&p.CanEdit, &p.CanDelete, &p.CanExport, &p.CanApprove, &p.UpdatedAt)
	if err != nil {
		return RolePermission{}, Classify(err)
	}
	return p, nil
}

// ModuleGrant agrega módulo e os seis grants, para montar a navegação do usuário.
type ModuleGrant struct {
	Module Module         `json:"module"`
	Grants RolePermission `json:"grants"`
}

func (q *Queries) ListGrantsByUser(ctx context.Context, userID uuid.UUID) ([]ModuleGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.pool.Query(ctx, `
		SELECT m.id, m.name, m.display_name, m.is_active, m.display_order,
		       p.id, p.role_id, p.module_id, p.can_view, p.can_create, p.can_edit,
		       p.can_delete, p.can_export, p.can_approve, p.updated_at
		FROM users u
		JOIN roles r ON r.id = u.role_id
		JOIN role_permissions p ON p.role_id = r.id
		JOIN modules m ON m.id = p.module_id
		WHERE u.id = $1 AND u.is_active AND m.is_active AND p.can_view
		ORDER BY m.display_order
	`, userID)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var result []ModuleGrant
	for rows.Next() {
		var g ModuleGrant
		if err := rows.Scan(
			&g.Module.ID, &g.Module.Name, &g.Module.DisplayName, &g.Module.IsActive, &g.Module.DisplayOrder,
			&g.Grants.ID, &g.Grants.RoleID, &g.Grants.ModuleID, &g.Grants.CanView, &g.Grants.CanCreate,
			&g.Grants.CanEdit, &g.Grants.CanDelete, &g.Grants.CanExport, &g.Grants.CanApprove, &g.Grants.UpdatedAt,
		); err != nil {
			return nil, Classify(err)
		}
		result = append(result, g)
	}
	return result, Classify(rows.Err())
}

func (q *Queries) ListPermissionsByRole(ctx context.Context, roleID uuid.UUID) ([]RolePermission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.pool.Query(ctx, `
		SELECT p.id, p.role_id, p.module_id, p.can_view, p.can_create, p.can_edit,
		       p.can_delete, p.can_export, p.can_approve, p.updated_at
		FROM role_permissions p
		JOIN modules m ON m.id = p.module_id
		WHERE p.role_id = $1
		ORDER BY m.display_order
	`, roleID)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var perms []RolePermission
	for rows.Next() {
		var p RolePermission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.ModuleID, &p.CanView, &p.CanCreate,
			&p.CanEdit, &p.CanDelete, &p.CanExport, &p.CanApprove, &p.UpdatedAt); err != nil {
			return nil, Classify(err)
		}
		perms = append(perms, p)
	}
	return perms, Classify(rows.Err())
}

// GetPermission busca a linha de um par (role, module) específico.
func (q *Queries) GetPermission(ctx context.Context, roleID, moduleID uuid.UUID) (RolePermission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p RolePermission
	err := q.pool.QueryRow(ctx, `
		SELECT id, role_id, module_id, can_view, can_create, can_edit,
		       can_delete, can_export, can_approve, updated_at
		FROM role_permissions
		WHERE role_id = $1 AND module_id = $2
	`, roleID, moduleID).Scan(&p.ID, &p.RoleID, &p.ModuleID, &p.CanView, &p.CanCreate,
		&p.CanEdit, &p.CanDelete, &p.CanExport, &p.CanApprove, &p.UpdatedAt)
	if err != nil {
		return RolePermission{}, Classify(err)
	}
	return p, nil
}

// UpsertPermission cria ou atualiza a linha do par (role, module) de forma
// atômica; o UNIQUE no banco impede linhas duplicadas sob concorrência.
func (q *Queries) UpsertPermission(ctx context.Context, p RolePermission) (RolePermission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var out RolePermission
	err := q.pool.QueryRow(ctx, `
		INSERT INTO role_permissions (role_id, module_id, can_view, can_create, can_edit, can_delete, can_export, can_approve)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (role_id, module_id) DO UPDATE SET
			can_view    = EXCLUDED.can_view,
			can_create  = EXCLUDED.can_create,
			can_edit    = EXCLUDED.can_edit,
			can_delete  = EXCLUDED.can_delete,
			can_export  = EXCLUDED.can_export,
			can_approve = EXCLUDED.can_approve,
			updated_at  = now()
		RETURNING id, role_id, module_id, can_view, can_create, can_edit, can_delete, can_export, can_approve, updated_at
	`, p.RoleID, p.ModuleID, p.CanView, p.CanCreate, p.CanEdit, p.CanDelete, p.CanExport, p.CanApprove).Scan(
		&out.ID, &out.RoleID, &out.ModuleID, &out.CanView, &out.CanCreate,
		&out.CanEdit, &out.CanDelete, &out.CanExport, &out.CanApprove, &out.UpdatedAt)
	if err != nil {
		return RolePermission{}, Classify(err)
	}
	return out, nil
}

// InsertPermission cria a linha do par e falha com ErrDuplicate se já existir.
func (q *Queries) InsertPermission(ctx context.Context, p RolePermission) (RolePermission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var out RolePermission
	err := q.pool.QueryRow(ctx, `
		INSERT INTO role_permissions (role_id, module_id, can_view, can_create, can_edit, can_delete, can_export, can_approve)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, role_id, module_id, can_view, can_create, can_edit, can_delete, can_export, can_approve, updated_at
	`, p.RoleID, p.ModuleID, p.CanView, p.CanCreate, p.CanEdit, p.CanDelete, p.CanExport, p.CanApprove).Scan(
		&out.ID, &out.RoleID, &out.ModuleID, &out.CanView, &out.CanCreate,
		&out.CanEdit, &out.CanDelete, &out.CanExport, &out.CanApprove, &out.UpdatedAt)
	if err != nil {
		return RolePermission{}, Classify(err)
	}
	return out, nil
}
