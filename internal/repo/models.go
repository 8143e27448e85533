package repo

import (
	"time"

	"github.com/google/uuid"
)

// User representa um colaborador autenticável do sistema.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	Department   string     `json:"department"`
	RoleID       *uuid.UUID `json:"role_id,omitempty"`
	RoleName     string     `json:"role,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role agrupa permissões por módulo. Papéis de sistema não podem ser removidos.
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
}

// Module é um domínio de capacidade contra o qual permissões são concedidas.
type Module struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	IsActive     bool      `json:"is_active"`
	DisplayOrder int       `json:"display_order"`
}

// RolePermission carrega os seis grants de um par (role, module).
// Ausência de linha equivale a todos os grants falsos.
type RolePermission struct {
	ID         uuid.UUID `json:"id"`
	RoleID     uuid.UUID `json:"role_id"`
	ModuleID   uuid.UUID `json:"module_id"`
	CanView    bool      `json:"can_view"`
	CanCreate  bool      `json:"can_create"`
	CanEdit    bool      `json:"can_edit"`
	CanDelete  bool      `json:"can_delete"`
	CanExport  bool      `json:"can_export"`
	CanApprove bool      `json:"can_approve"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TokenRefresh modela a tabela de refresh tokens.
type TokenRefresh struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
