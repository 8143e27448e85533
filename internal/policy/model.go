package policy

import (
	"time"

	"github.com/google/uuid"
)

// Policy é uma política interna versionada que colaboradores devem conhecer.
type Policy struct {
	ID                   uuid.UUID `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	Content              string    `json:"content,omitempty"`
	Version              string    `json:"version"`
	EffectiveDate        time.Time `json:"effective_date"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	IsActive             bool      `json:"is_active"`
	TotalConfirmations   int       `json:"total_confirmations"`
	Confirmed            int       `json:"confirmed"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ConfirmationRate é o percentual de leituras confirmadas. Política sem
// pendências de confirmação conta como 100%.
func (p Policy) ConfirmationRate() float64 {
	if p.TotalConfirmations == 0 {
		return 100
	}
	return float64(p.Confirmed) / float64(p.TotalConfirmations) * 100
}

// Confirmation registra a ciência de um colaborador sobre uma política.
type Confirmation struct {
	ID               uuid.UUID  `json:"id"`
	PolicyID         uuid.UUID  `json:"policy_id"`
	UserID           uuid.UUID  `json:"user_id"`
	UserName         string     `json:"user_name,omitempty"`
	Confirmed        bool       `json:"confirmed"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	DigitalSignature string     `json:"digital_signature,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
