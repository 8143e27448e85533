package audits

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Estados de uma auditoria.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Estados de uma não conformidade.
const (
	FindingOpen   = "open"
	FindingClosed = "closed"
)

// Severidades de não conformidade.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

var (
	ErrInvalidStatus   = errors.New("status de auditoria inválido")
	ErrInvalidSeverity = errors.New("severidade inválida")
)

// Audit é uma auditoria interna ou externa agendada para uma área da empresa.
type Audit struct {
	ID              uuid.UUID  `json:"id"`
	AuditType       string     `json:"audit_type"`
	ScheduledDate   time.Time  `json:"scheduled_date"`
	ExecutedDate    *time.Time `json:"executed_date,omitempty"`
	EvaluatedArea   string     `json:"evaluated_area"`
	ResponsibleID   uuid.UUID  `json:"responsible_id"`
	ResponsibleName string     `json:"responsible,omitempty"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	TotalFindings   int        `json:"total_findings"`
	OpenFindings    int        `json:"open_findings"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ComplianceRate é o percentual de não conformidades encerradas. Auditoria
// sem achados conta como 100%.
func (a Audit) ComplianceRate() float64 {
	if a.TotalFindings == 0 {
		return 100
	}
	closed := a.TotalFindings - a.OpenFindings
	return float64(closed) / float64(a.TotalFindings) * 100
}

// Finding é uma não conformidade apontada por uma auditoria.
type Finding struct {
	ID               uuid.UUID  `json:"id"`
	AuditID          uuid.UUID  `json:"audit_id"`
	Description      string     `json:"description"`
	Severity         string     `json:"severity"`
	CorrectiveAction string     `json:"corrective_action,omitempty"`
	Responsible      string     `json:"responsible,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	Status           string     `json:"status"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NormalizeStatus aceita variações comuns de grafia vindas da borda.
func NormalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	return strings.ReplaceAll(status, "-", "_")
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusScheduled, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func IsValidFindingStatus(status string) bool {
	return status == FindingOpen || status == FindingClosed
}

func NormalizeSeverity(severity string) string {
	return strings.ToLower(strings.TrimSpace(severity))
}

func IsValidSeverity(severity string) bool {
	switch severity {
	case SeverityCritical, SeverityMajor, SeverityMinor:
		return true
	}
	return false
}
