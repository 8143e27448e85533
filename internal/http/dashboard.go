package http

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/frutosdouro/conformidade/internal/repo"
)

// Dashboard consolida os indicadores de conformidade. Quando uma dependência
// está fora, a resposta sai degradada com agregados zerados em vez de 500.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	degraded := false

	certsByStatus, err := h.certs.CountByStatus(r.Context())
	if err != nil {
		if !errors.Is(err, repo.ErrUnavailable) {
			HandleError(w, err)
			return
		}
		degraded = true
		certsByStatus = map[string]int{}
	}

	auditsByStatus, err := h.audits.CountAuditsByStatus(r.Context())
	if err != nil {
		if !errors.Is(err, repo.ErrUnavailable) {
			HandleError(w, err)
			return
		}
		degraded = true
		auditsByStatus = map[string]int{}
	}

	findingsBySeverity, err := h.audits.CountOpenFindingsBySeverity(r.Context())
	if err != nil {
		if !errors.Is(err, repo.ErrUnavailable) {
			HandleError(w, err)
			return
		}
		degraded = true
		findingsBySeverity = map[string]int{}
	}

	unreadAlerts, err := h.alerts.CountUnread(r.Context())
	if err != nil {
		if !errors.Is(err, repo.ErrUnavailable) {
			HandleError(w, err)
			return
		}
		degraded = true
		unreadAlerts = 0
	}

	pendingConfirmations, err := h.policies.CountPendingConfirmations(r.Context())
	if err != nil {
		if !errors.Is(err, repo.ErrUnavailable) {
			HandleError(w, err)
			return
		}
		degraded = true
		pendingConfirmations = 0
	}

	if degraded {
		log.Warn().Msg("dashboard servido em modo degradado")
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"certifications_by_status":  certsByStatus,
		"audits_by_status":          auditsByStatus,
		"open_findings_by_severity": findingsBySeverity,
		"unread_alerts":             unreadAlerts,
		"pending_confirmations":     pendingConfirmations,
		"degraded":                  degraded,
	})
}
