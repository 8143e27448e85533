package audittrail

import (
	"time"

	"github.com/google/uuid"
)

// Ações registráveis na trilha.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionLogin   = "login"
	ActionLogout  = "logout"
	ActionConfirm = "confirm"
	ActionAlert   = "alert"
	ActionExport  = "export"
)

// FieldChange guarda o antes e o depois de um campo alterado.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Entry é uma entrada da trilha de auditoria antes da persistência.
type Entry struct {
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	Changes    map[string]FieldChange
	IP         string
	UserAgent  string
}

// Record é uma entrada persistida, com identidade e instante de gravação.
type Record struct {
	ID         uuid.UUID              `json:"id"`
	ActorID    *uuid.UUID             `json:"actor_id,omitempty"`
	ActorName  string                 `json:"actor_name,omitempty"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uuid.UUID             `json:"entity_id,omitempty"`
	Changes    map[string]FieldChange `json:"changes,omitempty"`
	IP         string                 `json:"ip,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// loggable define, por tipo de entidade, os campos que podem aparecer na
// trilha. Campos fora da lista são descartados; credenciais e hashes nunca
// entram aqui.
var loggable = map[string]map[string]bool{
	"user": {
		"username": true, "email": true, "full_name": true,
		"department": true, "role": true, "is_active": true,
	},
	"role": {
		"name": true, "display_name": true, "description": true,
	},
	"role_permission": {
		"role": true, "module": true,
		"can_view": true, "can_create": true, "can_edit": true,
		"can_delete": true, "can_export": true, "can_approve": true,
	},
	"certification": {
		"name": true, "norm": true, "issuing_entity": true, "responsible": true,
		"emission_date": true, "expiration_date": true, "status": true,
		"document_url": true, "notes": true,
	},
	"audit": {
		"audit_type": true, "scheduled_date": true, "executed_date": true,
		"evaluated_area": true, "responsible": true, "description": true, "status": true,
	},
	"audit_finding": {
		"audit_id": true, "description": true, "severity": true, "status": true,
		"corrective_action": true, "responsible": true, "deadline": true, "notes": true,
	},
	"policy": {
		"title": true, "description": true, "version": true, "effective_date": true,
		"requires_confirmation": true, "is_active": true,
	},
	"policy_confirmation": {
		"policy_id": true, "user_id": true, "confirmed": true, "confirmed_at": true,
	},
	"alert": {
		"alert_type": true, "related_id": true, "title": true,
		"severity": true, "recipient_email": true, "sent": true,
	},
	"session": {
		"username": true,
	},
}

// Sanitize remove campos não listados para o tipo de entidade. Tipos
// desconhecidos perdem o diff inteiro, por segurança.
func Sanitize(entityType string, changes map[string]FieldChange) map[string]FieldChange {
	if len(changes) == 0 {
		return nil
	}
	allowed, ok := loggable[entityType]
	if !ok {
		return nil
	}

	out := make(map[string]FieldChange, len(changes))
	for field, change := range changes {
		if allowed[field] {
			out[field] = change
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Diff compara dois instantâneos campo a campo e devolve apenas o que mudou.
func Diff(before, after map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for field, newVal := range after {
		oldVal, existed := before[field]
		if !existed || oldVal != newVal {
			changes[field] = FieldChange{Old: oldVal, New: newVal}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}
