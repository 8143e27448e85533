package http

import (
	"net/http"
	"strconv"

	"github.com/frutosdouro/conformidade/internal/alert"
)

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	onlyUnread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.alerts.List(r.Context(), alert.ListFilter{
		OnlyUnread: onlyUnread,
		Severity:   r.URL.Query().Get("severity"),
		Limit:      limit,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	unread, err := h.alerts.CountUnread(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": items,
		"unread": unread,
	})
}

func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.alerts.MarkRead(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *Handler) MarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.alerts.MarkAllRead(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// RunSweep dispara a varredura de vencimentos fora do ciclo agendado. Os
// flags one-shot garantem que rodadas manuais não dupliquem alertas.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	firings, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"dispatched": len(firings),
		"firings":    firings,
	})
}
