package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/frutosdouro/conformidade/internal/alert"
	"github.com/frutosdouro/conformidade/internal/audits"
	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/cert"
	"github.com/frutosdouro/conformidade/internal/config"
	httpmiddleware "github.com/frutosdouro/conformidade/internal/http/middleware"
	"github.com/frutosdouro/conformidade/internal/obs"
	"github.com/frutosdouro/conformidade/internal/policy"
	"github.com/frutosdouro/conformidade/internal/rbac"
	"github.com/frutosdouro/conformidade/internal/service"
)

// Services agrupa as dependências de domínio expostas pela API.
type Services struct {
	Auth     *service.AuthService
	Users    *service.UserService
	RBAC     *rbac.Service
	Certs    *cert.Service
	Audits   *audits.Service
	Policies *policy.Service
	Alerts   *alert.Repository
	Sweeper  *alert.Service
	Trail    *audittrail.Trail
}

type Handler struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	redis         *redis.Client
	auth          *service.AuthService
	users         *service.UserService
	rbac          *rbac.Service
	certs         *cert.Service
	audits        *audits.Service
	policies      *policy.Service
	alerts        *alert.Repository
	sweeper       *alert.Service
	trail         *audittrail.Trail
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	devCookies    bool
}

// Nomes dos módulos funcionais, conforme semeados na tabela modules.
const (
	moduleDashboard      = "dashboard"
	moduleCertifications = "certifications"
	moduleAudits         = "audits"
	modulePolicies       = "policies"
	moduleReports        = "reports"
	moduleAdmin          = "admin"
)

// NewRouter devolve roteador configurado.
func NewRouter(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, svcs Services) http.Handler {
	devCookies := false
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}

	h := &Handler{
		cfg:           cfg,
		pool:          pool,
		redis:         redisClient,
		auth:          svcs.Auth,
		users:         svcs.Users,
		rbac:          svcs.RBAC,
		certs:         svcs.Certs,
		audits:        svcs.Audits,
		policies:      svcs.Policies,
		alerts:        svcs.Alerts,
		sweeper:       svcs.Sweeper,
		trail:         svcs.Trail,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		devCookies:    devCookies,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)
		public.Handle("/metrics", obs.Handler())

		public.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Login)
			auth.Post("/refresh", h.Refresh)
			auth.Post("/logout", h.Logout)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(svcs.Auth.JWT()))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Get("/me", h.Me)
		private.Get("/modules", h.AccessibleModules)

		private.With(h.can(moduleDashboard, rbac.ActionView)).
			Get("/dashboard", h.Dashboard)

		private.Route("/certifications", func(c chi.Router) {
			c.With(h.can(moduleCertifications, rbac.ActionView)).Get("/", h.ListCertifications)
			c.With(h.can(moduleCertifications, rbac.ActionView)).Get("/{id}", h.GetCertification)
			c.With(h.can(moduleCertifications, rbac.ActionExport)).Get("/export", h.ExportCertifications)
			c.With(h.can(moduleCertifications, rbac.ActionCreate)).Post("/", h.CreateCertification)
			c.With(h.can(moduleCertifications, rbac.ActionEdit)).Patch("/{id}", h.UpdateCertification)
			c.With(h.can(moduleCertifications, rbac.ActionEdit)).Post("/{id}/document", h.UploadCertificationDocument)
			c.With(h.can(moduleCertifications, rbac.ActionDelete)).Delete("/{id}", h.DeleteCertification)
		})

		private.Route("/audits", func(a chi.Router) {
			a.With(h.can(moduleAudits, rbac.ActionView)).Get("/", h.ListAudits)
			a.With(h.can(moduleAudits, rbac.ActionView)).Get("/{id}", h.GetAudit)
			a.With(h.can(moduleAudits, rbac.ActionCreate)).Post("/", h.CreateAudit)
			a.With(h.can(moduleAudits, rbac.ActionEdit)).Patch("/{id}", h.UpdateAudit)
			a.With(h.can(moduleAudits, rbac.ActionDelete)).Delete("/{id}", h.DeleteAudit)

			a.Route("/{id}/findings", func(f chi.Router) {
				f.With(h.can(moduleAudits, rbac.ActionView)).Get("/", h.ListFindings)
				f.With(h.can(moduleAudits, rbac.ActionCreate)).Post("/", h.CreateFinding)
				f.With(h.can(moduleAudits, rbac.ActionEdit)).Patch("/{findingID}", h.UpdateFinding)
				f.With(h.can(moduleAudits, rbac.ActionApprove)).Post("/{findingID}/close", h.CloseFinding)
				f.With(h.can(moduleAudits, rbac.ActionApprove)).Post("/{findingID}/reopen", h.ReopenFinding)
				f.With(h.can(moduleAudits, rbac.ActionDelete)).Delete("/{findingID}", h.DeleteFinding)
			})
		})

		private.Route("/policies", func(p chi.Router) {
			p.With(h.can(modulePolicies, rbac.ActionView)).Get("/", h.ListPolicies)
			p.With(h.can(modulePolicies, rbac.ActionView)).Get("/{id}", h.GetPolicy)
			p.With(h.can(modulePolicies, rbac.ActionView)).Get("/pending", h.PendingPolicies)
			p.With(h.can(modulePolicies, rbac.ActionView)).Post("/{id}/confirm", h.ConfirmPolicy)
			p.With(h.can(modulePolicies, rbac.ActionView)).Get("/{id}/confirmations", h.ListPolicyConfirmations)
			p.With(h.can(modulePolicies, rbac.ActionCreate)).Post("/", h.PublishPolicy)
			p.With(h.can(modulePolicies, rbac.ActionEdit)).Patch("/{id}", h.UpdatePolicy)
			p.With(h.can(modulePolicies, rbac.ActionDelete)).Delete("/{id}", h.DeletePolicy)
		})

		private.Route("/alerts", func(a chi.Router) {
			a.With(h.can(moduleDashboard, rbac.ActionView)).Get("/", h.ListAlerts)
			a.With(h.can(moduleDashboard, rbac.ActionView)).Post("/{id}/read", h.MarkAlertRead)
			a.With(h.can(moduleDashboard, rbac.ActionView)).Post("/read-all", h.MarkAllAlertsRead)
			a.With(h.can(moduleAdmin, rbac.ActionEdit)).Post("/sweep", h.RunSweep)
		})

		private.Route("/admin", func(admin chi.Router) {
			admin.With(h.can(moduleAdmin, rbac.ActionView)).Get("/users", h.ListUsers)
			admin.With(h.can(moduleAdmin, rbac.ActionView)).Get("/users/{id}", h.GetUser)
			admin.With(h.can(moduleAdmin, rbac.ActionCreate)).Post("/users", h.CreateUser)
			admin.With(h.can(moduleAdmin, rbac.ActionEdit)).Patch("/users/{id}", h.UpdateUser)
			admin.With(h.can(moduleAdmin, rbac.ActionDelete)).Delete("/users/{id}", h.DeleteUser)

			admin.With(h.can(moduleAdmin, rbac.ActionView)).Get("/roles", h.ListRoles)
			admin.With(h.can(moduleAdmin, rbac.ActionCreate)).Post("/roles", h.CreateRole)
			admin.With(h.can(moduleAdmin, rbac.ActionDelete)).Delete("/roles/{id}", h.DeleteRole)
			admin.With(h.can(moduleAdmin, rbac.ActionView)).Get("/roles/{id}/permissions", h.RolePermissionMatrix)
			admin.With(h.can(moduleAdmin, rbac.ActionEdit)).Put("/roles/{id}/permissions", h.SetRolePermission)

			admin.With(h.can(moduleAdmin, rbac.ActionView)).Get("/audit-log", h.ListAuditLog)
		})
	})

	return r
}

func (h *Handler) can(module string, action rbac.Action) func(http.Handler) http.Handler {
	return httpmiddleware.RequirePermission(h.rbac, module, action)
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.pool.Ping(ctx)
	var redisErr error
	if h.redis != nil {
		redisErr = h.redis.Ping(ctx).Err()
	}

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "dependências indisponíveis", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
