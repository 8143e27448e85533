package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	httpmiddleware "github.com/frutosdouro/conformidade/internal/http/middleware"
	"github.com/frutosdouro/conformidade/internal/service"
)

const refreshCookieName = "refresh_token"

// Login autentica colaboradores por usuário e senha.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if strings.TrimSpace(payload.Username) == "" || strings.TrimSpace(payload.Password) == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "usuário e senha são obrigatórios", nil)
		return
	}

	result, err := h.auth.Login(r.Context(), payload.Username, payload.Password, clientIP(r), r.UserAgent())
	if err != nil {
		HandleError(w, err)
		return
	}

	h.writeLoginSuccess(w, result)
}

// Refresh rotaciona o par de tokens a partir do cookie de sessão.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := refreshFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "refresh ausente", nil)
		return
	}

	result, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		HandleError(w, err)
		return
	}

	h.writeLoginSuccess(w, result)
}

// Logout revoga o refresh token atual e limpa o cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := refreshFromRequest(r); err == nil {
		subject := h.bearerSubject(r)
		_ = h.auth.Logout(r.Context(), subject, token, clientIP(r))
	}

	h.clearRefreshCookie(w)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me retorna o perfil do usuário autenticado com seus módulos acessíveis.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject := httpmiddleware.GetSubject(r.Context())

	profile, err := h.auth.GetMe(r.Context(), subject)
	if err != nil {
		HandleError(w, err)
		return
	}

	modules, err := h.rbac.AccessibleModules(r.Context(), subject)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"user":    profile,
		"modules": modules,
	})
}

// AccessibleModules lista os módulos que o papel do usuário alcança.
func (h *Handler) AccessibleModules(w http.ResponseWriter, r *http.Request) {
	subject := httpmiddleware.GetSubject(r.Context())

	modules, err := h.rbac.AccessibleModules(r.Context(), subject)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, modules)
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, result *service.LoginResult) {
	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiry)

	WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"user":         result.Profile,
	})
}

// bearerSubject extrai o subject do token de acesso quando presente. O logout
// é rota pública; sem token válido a trilha registra ator desconhecido.
func (h *Handler) bearerSubject(r *http.Request) uuid.UUID {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return uuid.Nil
	}
	claims, err := h.auth.JWT().ParseAndValidate(parts[1])
	if err != nil {
		return uuid.Nil
	}
	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil
	}
	return subject
}

func refreshFromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(refreshCookieName)
	if err != nil || c.Value == "" {
		return "", http.ErrNoCookie
	}
	return c.Value, nil
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}
