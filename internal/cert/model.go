package cert

import (
	"time"

	"github.com/google/uuid"
)

// Estados possíveis de uma certificação.
const (
	StatusCurrent        = "current"
	StatusExpiringSoon   = "expiring_soon"
	StatusExpired        = "expired"
	StatusPendingRenewal = "pending_renewal"
)

// expiringWindowDays define a janela de "vencendo em breve", inclusive.
const expiringWindowDays = 15

// Clock fornece a data corrente. Substituível nos testes para fixar o dia.
type Clock interface {
	Today() time.Time
}

type systemClock struct{}

func (systemClock) Today() time.Time { return time.Now() }

// SystemClock é o relógio de produção.
var SystemClock Clock = systemClock{}

// FixedClock devolve sempre a mesma data. Útil em testes e na varredura one-shot.
type FixedClock struct {
	Date time.Time
}

func (c FixedClock) Today() time.Time { return c.Date }

// Certification é uma certificação ou licença da empresa com prazo de validade.
type Certification struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Norm             string     `json:"norm"`
	IssuingEntity    string     `json:"issuing_entity"`
	EmissionDate     time.Time  `json:"emission_date"`
	ExpirationDate   time.Time  `json:"expiration_date"`
	ResponsibleID    uuid.UUID  `json:"responsible_id"`
	ResponsibleName  string     `json:"responsible,omitempty"`
	ResponsibleEmail string     `json:"-"`
	DocumentURL      *string    `json:"document_url,omitempty"`
	Status           string     `json:"status"`
	AlertSent60      bool       `json:"alert_sent_60"`
	AlertSent30      bool       `json:"alert_sent_30"`
	AlertSent15      bool       `json:"alert_sent_15"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DaysToExpiration calcula dias inteiros entre hoje e o vencimento. Valores
// negativos indicam certificação vencida.
func DaysToExpiration(expiration, today time.Time) int {
	return int(midnight(expiration).Sub(midnight(today)).Hours() / 24)
}

// StatusFor deriva o estado a partir dos dias restantes: negativo é expired,
// dentro da janela (inclusive o dia zero) é expiring_soon, acima é current.
func StatusFor(days int) string {
	switch {
	case days < 0:
		return StatusExpired
	case days <= expiringWindowDays:
		return StatusExpiringSoon
	default:
		return StatusCurrent
	}
}

// DerivedStatus aplica StatusFor à certificação, preservando o marcador
// manual pending_renewal enquanto o prazo não vence.
func (c Certification) DerivedStatus(today time.Time) string {
	days := DaysToExpiration(c.ExpirationDate, today)
	if c.Status == StatusPendingRenewal && days >= 0 {
		return StatusPendingRenewal
	}
	return StatusFor(days)
}

// DaysToExpirationAt é um atalho sobre o relógio injetado.
func (c Certification) DaysToExpirationAt(clock Clock) int {
	return DaysToExpiration(c.ExpirationDate, clock.Today())
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
