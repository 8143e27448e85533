package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	httpmiddleware "github.com/frutosdouro/conformidade/internal/http/middleware"
	"github.com/frutosdouro/conformidade/internal/policy"
)

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	onlyActive, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	items, err := h.policies.List(r.Context(), onlyActive)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	item, err := h.policies.Get(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) PublishPolicy(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title                string `json:"title"`
		Description          string `json:"description"`
		Content              string `json:"content"`
		Version              string `json:"version"`
		EffectiveDate        string `json:"effective_date"`
		RequiresConfirmation bool   `json:"requires_confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	effective, err := parseDate(payload.EffectiveDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "effective_date inválida (AAAA-MM-DD)", nil)
		return
	}

	item, err := h.policies.Publish(r.Context(), httpmiddleware.GetSubject(r.Context()), policy.PublishInput{
		Title:                payload.Title,
		Description:          payload.Description,
		Content:              payload.Content,
		Version:              payload.Version,
		EffectiveDate:        effective,
		RequiresConfirmation: payload.RequiresConfirmation,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		Title         *string `json:"title"`
		Description   *string `json:"description"`
		Content       *string `json:"content"`
		Version       *string `json:"version"`
		EffectiveDate *string `json:"effective_date"`
		IsActive      *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	effective, err := parseDatePtr(payload.EffectiveDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "effective_date inválida (AAAA-MM-DD)", nil)
		return
	}

	item, err := h.policies.Update(r.Context(), httpmiddleware.GetSubject(r.Context()), id, policy.UpdateInput{
		Title:         payload.Title,
		Description:   payload.Description,
		Content:       payload.Content,
		Version:       payload.Version,
		EffectiveDate: effective,
		IsActive:      payload.IsActive,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.policies.Delete(r.Context(), httpmiddleware.GetSubject(r.Context()), id); err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ListPolicyConfirmations(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	items, err := h.policies.ListConfirmations(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, items)
}

// ConfirmPolicy registra a ciência do próprio usuário autenticado.
func (h *Handler) ConfirmPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		DigitalSignature string `json:"digital_signature"`
		Notes            string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	confirmation, err := h.policies.Confirm(
		r.Context(),
		httpmiddleware.GetSubject(r.Context()),
		id,
		payload.DigitalSignature,
		clientIP(r),
		payload.Notes,
	)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, confirmation)
}

// PendingPolicies lista políticas ativas que o usuário ainda não confirmou.
func (h *Handler) PendingPolicies(w http.ResponseWriter, r *http.Request) {
	items, err := h.policies.PendingForUser(r.Context(), httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, items)
}
