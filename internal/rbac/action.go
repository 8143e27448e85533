package rbac

import "github.com/frutosdouro/conformidade/internal/repo"

// Action é um dos seis grants concedíveis por par (role, module).
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionExport  Action = "export"
	ActionApprove Action = "approve"
)

// Actions lista os grants conhecidos, na ordem das colunas.
var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove}

// granted seleciona o campo booleano correspondente à ação.
// Ações desconhecidas resolvem para false.
func granted(p repo.RolePermission, action Action) bool {
	switch action {
	case ActionView:
		return p.CanView
	case ActionCreate:
		return p.CanCreate
	case ActionEdit:
		return p.CanEdit
	case ActionDelete:
		return p.CanDelete
	case ActionExport:
		return p.CanExport
	case ActionApprove:
		return p.CanApprove
	default:
		return false
	}
}
