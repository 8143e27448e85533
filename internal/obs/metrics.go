package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SweepRuns conta execuções da varredura de vencimentos.
	SweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alert_sweep_runs_total",
		Help: "Execuções da varredura de vencimento de certificações.",
	})

	// AlertsDispatched conta alertas disparados por limiar.
	AlertsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_dispatched_total",
			Help: "Alertas de vencimento disparados.",
		},
		[]string{"threshold"},
	)

	// DeliveryFailures conta falhas de entrega de e-mail (não bloqueantes).
	DeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alert_delivery_failures_total",
		Help: "Falhas de entrega de notificação de alerta.",
	})

	// AuditTrailFailures conta falhas de escrita na trilha de auditoria.
	AuditTrailFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_trail_write_failures_total",
		Help: "Falhas ao gravar entradas na trilha de auditoria.",
	})
)

// Init registra as métricas no registro padrão.
func Init() {
	prometheus.MustRegister(SweepRuns, AlertsDispatched, DeliveryFailures, AuditTrailFailures)
}

// Handler expõe /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
