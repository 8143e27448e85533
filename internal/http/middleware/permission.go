package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/frutosdouro/conformidade/internal/rbac"
)

// PermissionResolver decide se um usuário pode executar uma ação sobre um
// módulo funcional.
type PermissionResolver interface {
	Can(ctx context.Context, userID uuid.UUID, module string, action rbac.Action) (bool, error)
}

// RequirePermission bloqueia a rota quando o papel do usuário não concede a
// ação sobre o módulo. Falha de infraestrutura nega com 503, nunca libera.
func RequirePermission(resolver PermissionResolver, module string, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := GetSubject(r.Context())
			if subject == uuid.Nil {
				writeError(w, http.StatusUnauthorized, "AUTH", "identificação ausente")
				return
			}

			allowed, err := resolver.Can(r.Context(), subject, module, action)
			if err != nil {
				log.Error().Err(err).Str("module", module).Str("action", string(action)).
					Msg("resolução de permissão indisponível")
				writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "verificação de permissão indisponível")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "permissão insuficiente")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
