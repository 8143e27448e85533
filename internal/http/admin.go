package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	httpmiddleware "github.com/frutosdouro/conformidade/internal/http/middleware"
	"github.com/frutosdouro/conformidade/internal/repo"
	"github.com/frutosdouro/conformidade/internal/service"
)

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	onlyActive, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	items, err := h.users.List(r.Context(), onlyActive)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	item, err := h.users.Get(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username   string  `json:"username"`
		Email      string  `json:"email"`
		Password   string  `json:"password"`
		FullName   string  `json:"full_name"`
		Department string  `json:"department"`
		RoleID     *string `json:"role_id"`
		IsActive   *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	in := service.CreateUserInput{
		Username:   payload.Username,
		Email:      payload.Email,
		Password:   payload.Password,
		FullName:   payload.FullName,
		Department: payload.Department,
		IsActive:   true,
	}
	if payload.IsActive != nil {
		in.IsActive = *payload.IsActive
	}
	if payload.RoleID != nil {
		roleID, err := uuid.Parse(*payload.RoleID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "role_id inválido", nil)
			return
		}
		in.RoleID = &roleID
	}

	item, err := h.users.Create(r.Context(), httpmiddleware.GetSubject(r.Context()), in)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		Email      *string `json:"email"`
		Password   *string `json:"password"`
		FullName   *string `json:"full_name"`
		Department *string `json:"department"`
		RoleID     *string `json:"role_id"`
		IsActive   *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	in := service.UpdateUserInput{
		Email:      payload.Email,
		Password:   payload.Password,
		FullName:   payload.FullName,
		Department: payload.Department,
		IsActive:   payload.IsActive,
	}
	if payload.RoleID != nil {
		roleID, err := uuid.Parse(*payload.RoleID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "role_id inválido", nil)
			return
		}
		in.RoleID = &roleID
	}

	item, err := h.users.Update(r.Context(), httpmiddleware.GetSubject(r.Context()), id, in)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.users.Delete(r.Context(), httpmiddleware.GetSubject(r.Context()), id); err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	items, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	item, err := h.rbac.CreateRole(r.Context(), httpmiddleware.GetSubject(r.Context()), payload.Name, payload.DisplayName, payload.Description)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.rbac.DeleteRole(r.Context(), httpmiddleware.GetSubject(r.Context()), id); err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RolePermissionMatrix devolve a grade completa do papel, com linhas zeradas
// para módulos ainda sem concessão.
func (h *Handler) RolePermissionMatrix(w http.ResponseWriter, r *http.Request) {
	roleID, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	matrix, err := h.rbac.Matrix(r.Context(), roleID)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, matrix)
}

func (h *Handler) SetRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		ModuleID   string `json:"module_id"`
		CanView    bool   `json:"can_view"`
		CanCreate  bool   `json:"can_create"`
		CanEdit    bool   `json:"can_edit"`
		CanDelete  bool   `json:"can_delete"`
		CanExport  bool   `json:"can_export"`
		CanApprove bool   `json:"can_approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	moduleID, err := uuid.Parse(payload.ModuleID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "module_id inválido", nil)
		return
	}

	item, err := h.rbac.SetPermission(r.Context(), httpmiddleware.GetSubject(r.Context()), repo.RolePermission{
		RoleID:     roleID,
		ModuleID:   moduleID,
		CanView:    payload.CanView,
		CanCreate:  payload.CanCreate,
		CanEdit:    payload.CanEdit,
		CanDelete:  payload.CanDelete,
		CanExport:  payload.CanExport,
		CanApprove: payload.CanApprove,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

// ListAuditLog pagina a trilha de auditoria, do evento mais recente para o
// mais antigo.
func (h *Handler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audittrail.ListFilter{
		EntityType: q.Get("entity_type"),
		Action:     q.Get("action"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	if raw := q.Get("actor_id"); raw != "" {
		actorID, err := uuid.Parse(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "actor_id inválido", nil)
			return
		}
		filter.ActorID = &actorID
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(dateLayout, raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "since inválido (AAAA-MM-DD)", nil)
			return
		}
		filter.Since = &since
	}
	if raw := q.Get("until"); raw != "" {
		until, err := time.Parse(dateLayout, raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "until inválido (AAAA-MM-DD)", nil)
			return
		}
		filter.Until = &until
	}

	records, total, err := h.trail.List(r.Context(), filter)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"entries": records,
		"total":   total,
	})
}
