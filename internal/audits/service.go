package audits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/repo"
)

var (
	// ErrValidation indica entrada malformada ou que viola restrição de negócio.
	ErrValidation = errors.New("dados inválidos")
)

// Store é a persistência exigida pelo serviço de auditorias.
type Store interface {
	ListAudits(ctx context.Context, f AuditFilter) ([]Audit, error)
	GetAudit(ctx context.Context, id uuid.UUID) (Audit, error)
	InsertAudit(ctx context.Context, p InsertAuditParams) (Audit, error)
	UpdateAudit(ctx context.Context, id uuid.UUID, p UpdateAuditParams) (Audit, error)
	DeleteAudit(ctx context.Context, id uuid.UUID) error
	ListFindings(ctx context.Context, auditID uuid.UUID) ([]Finding, error)
	GetFinding(ctx context.Context, id uuid.UUID) (Finding, error)
	InsertFinding(ctx context.Context, p InsertFindingParams) (Finding, error)
	UpdateFinding(ctx context.Context, id uuid.UUID, p UpdateFindingParams) (Finding, error)
	DeleteFinding(ctx context.Context, id uuid.UUID) error
	CountAuditsByStatus(ctx context.Context) (map[string]int, error)
	CountOpenFindingsBySeverity(ctx context.Context) (map[string]int, error)
}

// Service reúne regras de negócio de auditorias e não conformidades.
type Service struct {
	store Store
	trail audittrail.Recorder
}

func NewService(store Store, trail audittrail.Recorder) *Service {
	return &Service{store: store, trail: trail}
}

func (s *Service) ListAudits(ctx context.Context, f AuditFilter) ([]Audit, error) {
	f.Status = NormalizeStatus(f.Status)
	if f.Status != "" && !IsValidStatus(f.Status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, f.Status)
	}
	return s.store.ListAudits(ctx, f)
}

func (s *Service) GetAudit(ctx context.Context, id uuid.UUID) (Audit, error) {
	return s.store.GetAudit(ctx, id)
}

// CreateAuditInput carrega os campos de agendamento de uma auditoria.
type CreateAuditInput struct {
	AuditType     string
	ScheduledDate time.Time
	EvaluatedArea string
	ResponsibleID uuid.UUID
	Description   string
}

func (s *Service) CreateAudit(ctx context.Context, actorID uuid.UUID, in CreateAuditInput) (Audit, error) {
	in.AuditType = strings.TrimSpace(in.AuditType)
	in.EvaluatedArea = strings.TrimSpace(in.EvaluatedArea)

	if in.AuditType == "" {
		return Audit{}, fmt.Errorf("%w: tipo de auditoria é obrigatório", ErrValidation)
	}
	if in.EvaluatedArea == "" {
		return Audit{}, fmt.Errorf("%w: área avaliada é obrigatória", ErrValidation)
	}
	if in.ScheduledDate.IsZero() {
		return Audit{}, fmt.Errorf("%w: data agendada é obrigatória", ErrValidation)
	}
	if in.ResponsibleID == uuid.Nil {
		return Audit{}, fmt.Errorf("%w: responsável é obrigatório", ErrValidation)
	}

	a, err := s.store.InsertAudit(ctx, InsertAuditParams{
		AuditType:     in.AuditType,
		ScheduledDate: in.ScheduledDate,
		EvaluatedArea: in.EvaluatedArea,
		ResponsibleID: in.ResponsibleID,
		Description:   strings.TrimSpace(in.Description),
	})
	if err != nil {
		if errors.Is(err, repo.ErrReferenced) {
			return Audit{}, fmt.Errorf("%w: responsável inexistente", ErrValidation)
		}
		return Audit{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionCreate,
		EntityType: "audit",
		EntityID:   audittrail.Ref(a.ID),
		Changes:    audittrail.Diff(nil, auditSnapshot(a)),
	})
	return a, nil
}

// UpdateAuditInput carrega alterações parciais de uma auditoria.
type UpdateAuditInput struct {
	AuditType     *string
	ScheduledDate *time.Time
	EvaluatedArea *string
	ResponsibleID *uuid.UUID
	Description   *string
	Status        *string
}

// UpdateAudit aplica alterações parciais. Concluir preenche a data de
// execução quando ausente; voltar para agendada limpa a data.
func (s *Service) UpdateAudit(ctx context.Context, actorID, id uuid.UUID, in UpdateAuditInput) (Audit, error) {
	before, err := s.store.GetAudit(ctx, id)
	if err != nil {
		return Audit{}, err
	}

	params := UpdateAuditParams{
		AuditType:     in.AuditType,
		ScheduledDate: in.ScheduledDate,
		EvaluatedArea: in.EvaluatedArea,
		ResponsibleID: in.ResponsibleID,
		Description:   in.Description,
	}

	if in.Status != nil {
		status := NormalizeStatus(*in.Status)
		if !IsValidStatus(status) {
			return Audit{}, fmt.Errorf("%w: %s", ErrInvalidStatus, *in.Status)
		}
		params.Status = &status

		switch status {
		case StatusCompleted:
			if before.ExecutedDate == nil {
				now := time.Now()
				params.ExecutedDate = &now
			}
		case StatusScheduled:
			params.ClearExecuted = true
		}
	}

	after, err := s.store.UpdateAudit(ctx, id, params)
	if err != nil {
		if errors.Is(err, repo.ErrReferenced) {
			return Audit{}, fmt.Errorf("%w: responsável inexistente", ErrValidation)
		}
		return Audit{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionUpdate,
		EntityType: "audit",
		EntityID:   audittrail.Ref(id),
		Changes:    audittrail.Diff(auditSnapshot(before), auditSnapshot(after)),
	})
	return after, nil
}

// DeleteAudit remove a auditoria junto com suas não conformidades.
func (s *Service) DeleteAudit(ctx context.Context, actorID, id uuid.UUID) error {
	before, err := s.store.GetAudit(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteAudit(ctx, id); err != nil {
		return err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionDelete,
		EntityType: "audit",
		EntityID:   audittrail.Ref(id),
		Changes: map[string]audittrail.FieldChange{
			"audit_type":     {Old: before.AuditType},
			"evaluated_area": {Old: before.EvaluatedArea},
		},
	})
	return nil
}

// ListFindings exige que a auditoria exista antes de listar.
func (s *Service) ListFindings(ctx context.Context, auditID uuid.UUID) ([]Finding, error) {
	if _, err := s.store.GetAudit(ctx, auditID); err != nil {
		return nil, err
	}
	return s.store.ListFindings(ctx, auditID)
}

// CreateFindingInput carrega os campos de uma não conformidade nova.
type CreateFindingInput struct {
	Description      string
	Severity         string
	CorrectiveAction string
	Responsible      string
	Deadline         *time.Time
	Notes            string
}

func (s *Service) CreateFinding(ctx context.Context, actorID, auditID uuid.UUID, in CreateFindingInput) (Finding, error) {
	if _, err := s.store.GetAudit(ctx, auditID); err != nil {
		return Finding{}, err
	}

	in.Description = strings.TrimSpace(in.Description)
	in.Severity = NormalizeSeverity(in.Severity)

	if in.Description == "" {
		return Finding{}, fmt.Errorf("%w: descrição é obrigatória", ErrValidation)
	}
	if !IsValidSeverity(in.Severity) {
		return Finding{}, fmt.Errorf("%w: %s", ErrInvalidSeverity, in.Severity)
	}

	f, err := s.store.InsertFinding(ctx, InsertFindingParams{
		AuditID:          auditID,
		Description:      in.Description,
		Severity:         in.Severity,
		CorrectiveAction: strings.TrimSpace(in.CorrectiveAction),
		Responsible:      strings.TrimSpace(in.Responsible),
		Deadline:         in.Deadline,
		Notes:            strings.TrimSpace(in.Notes),
	})
	if err != nil {
		return Finding{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionCreate,
		EntityType: "audit_finding",
		EntityID:   audittrail.Ref(f.ID),
		Changes:    audittrail.Diff(nil, findingSnapshot(f)),
	})
	return f, nil
}

// UpdateFindingInput carrega alterações parciais de uma não conformidade.
type UpdateFindingInput struct {
	Description      *string
	Severity         *string
	CorrectiveAction *string
	Responsible      *string
	Deadline         *time.Time
	Status           *string
	Notes            *string
}

// UpdateFinding aplica alterações parciais. A não conformidade precisa
// pertencer à auditoria informada; divergência é tratada como inexistente.
func (s *Service) UpdateFinding(ctx context.Context, actorID, auditID, findingID uuid.UUID, in UpdateFindingInput) (Finding, error) {
	before, err := s.findingOf(ctx, auditID, findingID)
	if err != nil {
		return Finding{}, err
	}

	params := UpdateFindingParams{
		Description:      in.Description,
		CorrectiveAction: in.CorrectiveAction,
		Responsible:      in.Responsible,
		Deadline:         in.Deadline,
		Notes:            in.Notes,
	}

	if in.Severity != nil {
		severity := NormalizeSeverity(*in.Severity)
		if !IsValidSeverity(severity) {
			return Finding{}, fmt.Errorf("%w: %s", ErrInvalidSeverity, *in.Severity)
		}
		params.Severity = &severity
	}
	if in.Status != nil {
		status := NormalizeStatus(*in.Status)
		if !IsValidFindingStatus(status) {
			return Finding{}, fmt.Errorf("%w: status de não conformidade inválido: %s", ErrValidation, *in.Status)
		}
		params.Status = &status
	}

	after, err := s.store.UpdateFinding(ctx, findingID, params)
	if err != nil {
		return Finding{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionUpdate,
		EntityType: "audit_finding",
		EntityID:   audittrail.Ref(findingID),
		Changes:    audittrail.Diff(findingSnapshot(before), findingSnapshot(after)),
	})
	return after, nil
}

// CloseFinding encerra a não conformidade sem tocar nos demais campos.
func (s *Service) CloseFinding(ctx context.Context, actorID, auditID, findingID uuid.UUID) (Finding, error) {
	status := FindingClosed
	return s.UpdateFinding(ctx, actorID, auditID, findingID, UpdateFindingInput{Status: &status})
}

// ReopenFinding devolve a não conformidade ao estado aberto, preservando o
// plano de ação corretiva já registrado.
func (s *Service) ReopenFinding(ctx context.Context, actorID, auditID, findingID uuid.UUID) (Finding, error) {
	status := FindingOpen
	return s.UpdateFinding(ctx, actorID, auditID, findingID, UpdateFindingInput{Status: &status})
}

func (s *Service) DeleteFinding(ctx context.Context, actorID, auditID, findingID uuid.UUID) error {
	before, err := s.findingOf(ctx, auditID, findingID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteFinding(ctx, findingID); err != nil {
		return err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionDelete,
		EntityType: "audit_finding",
		EntityID:   audittrail.Ref(findingID),
		Changes: map[string]audittrail.FieldChange{
			"audit_id":    {Old: auditID.String()},
			"description": {Old: before.Description},
		},
	})
	return nil
}

// findingOf carrega a não conformidade e confere o vínculo com a auditoria.
func (s *Service) findingOf(ctx context.Context, auditID, findingID uuid.UUID) (Finding, error) {
	f, err := s.store.GetFinding(ctx, findingID)
	if err != nil {
		return Finding{}, err
	}
	if f.AuditID != auditID {
		return Finding{}, repo.ErrNotFound
	}
	return f, nil
}

// CountAuditsByStatus e CountOpenFindingsBySeverity alimentam o painel.
func (s *Service) CountAuditsByStatus(ctx context.Context) (map[string]int, error) {
	return s.store.CountAuditsByStatus(ctx)
}

func (s *Service) CountOpenFindingsBySeverity(ctx context.Context) (map[string]int, error) {
	return s.store.CountOpenFindingsBySeverity(ctx)
}

func auditSnapshot(a Audit) map[string]any {
	var executed any
	if a.ExecutedDate != nil {
		executed = a.ExecutedDate.Format("2006-01-02")
	}
	return map[string]any{
		"audit_type":     a.AuditType,
		"scheduled_date": a.ScheduledDate.Format("2006-01-02"),
		"executed_date":  executed,
		"evaluated_area": a.EvaluatedArea,
		"responsible":    a.ResponsibleName,
		"description":    a.Description,
		"status":         a.Status,
	}
}

func findingSnapshot(f Finding) map[string]any {
	var deadline any
	if f.Deadline != nil {
		deadline = f.Deadline.Format("2006-01-02")
	}
	return map[string]any{
		"audit_id":          f.AuditID.String(),
		"description":       f.Description,
		"severity":          f.Severity,
		"corrective_action": f.CorrectiveAction,
		"responsible":       f.Responsible,
		"deadline":          deadline,
		"status":            f.Status,
		"notes":             f.Notes,
	}
}
