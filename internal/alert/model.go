package alert

import (
	"time"

	"github.com/google/uuid"
)

// Tipos de alerta persistidos na caixa de entrada.
const (
	TypeExpiration = "expiration"
)

// Severidades, em ordem crescente de urgência.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert é uma notificação persistida, visível na caixa de entrada do sistema
// mesmo quando o e-mail correspondente falhou.
type Alert struct {
	ID             uuid.UUID  `json:"id"`
	AlertType      string     `json:"alert_type"`
	RelatedID      *uuid.UUID `json:"related_id,omitempty"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Severity       string     `json:"severity"`
	IsRead         bool       `json:"is_read"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	Sent           bool       `json:"sent"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Firing descreve um disparo da varredura, para observabilidade e testes.
type Firing struct {
	CertificationID uuid.UUID `json:"certification_id"`
	Threshold       int       `json:"threshold"`
	Delivered       bool      `json:"delivered"`
}

// severityFor mapeia limiar em severidade: quanto mais perto do vencimento,
// mais urgente.
func severityFor(threshold int) string {
	switch threshold {
	case 15:
		return SeverityCritical
	case 30:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
