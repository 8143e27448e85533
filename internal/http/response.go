package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/frutosdouro/conformidade/internal/audits"
	"github.com/frutosdouro/conformidade/internal/cert"
	"github.com/frutosdouro/conformidade/internal/policy"
	"github.com/frutosdouro/conformidade/internal/rbac"
	"github.com/frutosdouro/conformidade/internal/repo"
	"github.com/frutosdouro/conformidade/internal/service"
)

// SuccessEnvelope padroniza respostas com dados.
type SuccessEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// ErrorEnvelope padroniza respostas de erro.
type ErrorEnvelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// ErrorBody descreve falhas normalizadas.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSON escreve envelope de sucesso.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessEnvelope{Data: data, Error: nil})
}

// WriteError escreve envelope de erro e mantém formato consistente.
func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Data:  nil,
		Error: &ErrorBody{Code: code, Message: message, Details: details},
	})
}

// HandleError traduz erros de domínio para o envelope padrão. Erros não
// reconhecidos viram INTERNAL sem vazar detalhes.
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, rbac.ErrValidation),
		errors.Is(err, cert.ErrValidation),
		errors.Is(err, audits.ErrValidation),
		errors.Is(err, policy.ErrValidation):
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrRefreshInvalid):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, service.ErrAccountDisabled):
		WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "registro não encontrado", nil)
	case errors.Is(err, service.ErrUserReferenced),
		errors.Is(err, repo.ErrReferenced),
		errors.Is(err, repo.ErrDuplicate):
		WriteError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, repo.ErrUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "dependência indisponível", nil)
	default:
		log.Error().Err(err).Msg("erro não mapeado na API")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
	}
}
