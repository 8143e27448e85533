package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/audits"
	httpmiddleware "github.com/frutosdouro/conformidade/internal/http/middleware"
)

func (h *Handler) ListAudits(w http.ResponseWriter, r *http.Request) {
	filter := audits.AuditFilter{
		Status:    r.URL.Query().Get("status"),
		AuditType: r.URL.Query().Get("type"),
	}

	items, err := h.audits.ListAudits(r.Context(), filter)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	item, err := h.audits.GetAudit(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) CreateAudit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AuditType     string `json:"audit_type"`
		ScheduledDate string `json:"scheduled_date"`
		EvaluatedArea string `json:"evaluated_area"`
		ResponsibleID string `json:"responsible_id"`
		Description   string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	scheduled, err := parseDate(payload.ScheduledDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "scheduled_date inválida (AAAA-MM-DD)", nil)
		return
	}
	responsible, err := uuid.Parse(payload.ResponsibleID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "responsible_id inválido", nil)
		return
	}

	item, err := h.audits.CreateAudit(r.Context(), httpmiddleware.GetSubject(r.Context()), audits.CreateAuditInput{
		AuditType:     payload.AuditType,
		ScheduledDate: scheduled,
		EvaluatedArea: payload.EvaluatedArea,
		ResponsibleID: responsible,
		Description:   payload.Description,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateAudit(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		AuditType     *string `json:"audit_type"`
		ScheduledDate *string `json:"scheduled_date"`
		EvaluatedArea *string `json:"evaluated_area"`
		ResponsibleID *string `json:"responsible_id"`
		Description   *string `json:"description"`
		Status        *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	scheduled, err := parseDatePtr(payload.ScheduledDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "scheduled_date inválida (AAAA-MM-DD)", nil)
		return
	}

	in := audits.UpdateAuditInput{
		AuditType:     payload.AuditType,
		ScheduledDate: scheduled,
		EvaluatedArea: payload.EvaluatedArea,
		Description:   payload.Description,
		Status:        payload.Status,
	}
	if payload.ResponsibleID != nil {
		responsible, err := uuid.Parse(*payload.ResponsibleID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "responsible_id inválido", nil)
			return
		}
		in.ResponsibleID = &responsible
	}

	item, err := h.audits.UpdateAudit(r.Context(), httpmiddleware.GetSubject(r.Context()), id, in)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) DeleteAudit(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.audits.DeleteAudit(r.Context(), httpmiddleware.GetSubject(r.Context()), id); err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ListFindings(w http.ResponseWriter, r *http.Request) {
	auditID, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	items, err := h.audits.ListFindings(r.Context(), auditID)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) CreateFinding(w http.ResponseWriter, r *http.Request) {
	auditID, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		Description      string  `json:"description"`
		Severity         string  `json:"severity"`
		CorrectiveAction string  `json:"corrective_action"`
		Responsible      string  `json:"responsible"`
		Deadline         *string `json:"deadline"`
		Notes            string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	deadline, err := parseDatePtr(payload.Deadline)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "deadline inválido (AAAA-MM-DD)", nil)
		return
	}

	item, err := h.audits.CreateFinding(r.Context(), httpmiddleware.GetSubject(r.Context()), auditID, audits.CreateFindingInput{
		Description:      payload.Description,
		Severity:         payload.Severity,
		CorrectiveAction: payload.CorrectiveAction,
		Responsible:      payload.Responsible,
		Deadline:         deadline,
		Notes:            payload.Notes,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateFinding(w http.ResponseWriter, r *http.Request) {
	auditID, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}
	findingID, err := urlUUID(r, "findingID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "findingID inválido", nil)
		return
	}

	var payload struct {
		Description      *string `json:"description"`
		Severity         *string `json:"severity"`
		CorrectiveAction *string `json:"corrective_action"`
		Responsible      *string `json:"responsible"`
		Deadline         *string `json:"deadline"`
		Status           *string `json:"status"`
		Notes            *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	deadline, err := parseDatePtr(payload.Deadline)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "deadline inválido (AAAA-MM-DD)", nil)
		return
	}

	item, err := h.audits.UpdateFinding(r.Context(), httpmiddleware.GetSubject(r.Context()), auditID, findingID, audits.UpdateFindingInput{
		Description:      payload.Description,
		Severity:         payload.Severity,
		CorrectiveAction: payload.CorrectiveAction,
		Responsible:      payload.Responsible,
		Deadline:         deadline,
		Status:           payload.Status,
		Notes:            payload.Notes,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) CloseFinding(w http.ResponseWriter, r *http.Request) {
	h.transitionFinding(w, r, h.audits.CloseFinding)
}

func (h *Handler) ReopenFinding(w http.ResponseWriter, r *http.Request) {
	h.transitionFinding(w, r, h.audits.ReopenFinding)
}

func (h *Handler) transitionFinding(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, actorID, auditID, findingID uuid.UUID) (audits.Finding, error),
) {
	auditID, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}
	findingID, err := urlUUID(r, "findingID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "findingID inválido", nil)
		return
	}

	item, err := fn(r.Context(), httpmiddleware.GetSubject(r.Context()), auditID, findingID)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) DeleteFinding(w http.ResponseWriter, r *http.Request) {
	auditID, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}
	findingID, err := urlUUID(r, "findingID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "findingID inválido", nil)
		return
	}

	if err := h.audits.DeleteFinding(r.Context(), httpmiddleware.GetSubject(r.Context()), auditID, findingID); err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
