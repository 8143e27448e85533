package audits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/repo"
)

// memStore guarda auditorias e não conformidades em memória.
type memStore struct {
	audits   map[uuid.UUID]Audit
	findings map[uuid.UUID]Finding
}

func newMemStore() *memStore {
	return &memStore{
		audits:   make(map[uuid.UUID]Audit),
		findings: make(map[uuid.UUID]Finding),
	}
}

func (m *memStore) ListAudits(ctx context.Context, f AuditFilter) ([]Audit, error) {
	var out []Audit
	for _, a := range m.audits {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) GetAudit(ctx context.Context, id uuid.UUID) (Audit, error) {
	a, ok := m.audits[id]
	if !ok {
		return Audit{}, repo.ErrNotFound
	}
	return a, nil
}

func (m *memStore) InsertAudit(ctx context.Context, p InsertAuditParams) (Audit, error) {
	a := Audit{
		ID:            uuid.New(),
		AuditType:     p.AuditType,
		ScheduledDate: p.ScheduledDate,
		EvaluatedArea: p.EvaluatedArea,
		ResponsibleID: p.ResponsibleID,
		Description:   p.Description,
		Status:        StatusScheduled,
	}
	m.audits[a.ID] = a
	return a, nil
}

func (m *memStore) UpdateAudit(ctx context.Context, id uuid.UUID, p UpdateAuditParams) (Audit, error) {
	a, ok := m.audits[id]
	if !ok {
		return Audit{}, repo.ErrNotFound
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.ClearExecuted {
		a.ExecutedDate = nil
	} else if p.ExecutedDate != nil {
		a.ExecutedDate = p.ExecutedDate
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	m.audits[id] = a
	return a, nil
}

func (m *memStore) DeleteAudit(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.audits[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.audits, id)
	for fid, f := range m.findings {
		if f.AuditID == id {
			delete(m.findings, fid)
		}
	}
	return nil
}

func (m *memStore) ListFindings(ctx context.Context, auditID uuid.UUID) ([]Finding, error) {
	var out []Finding
	for _, f := range m.findings {
		if f.AuditID == auditID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memStore) GetFinding(ctx context.Context, id uuid.UUID) (Finding, error) {
	f, ok := m.findings[id]
	if !ok {
		return Finding{}, repo.ErrNotFound
	}
	return f, nil
}

func (m *memStore) InsertFinding(ctx context.Context, p InsertFindingParams) (Finding, error) {
	f := Finding{
		ID:               uuid.New(),
		AuditID:          p.AuditID,
		Description:      p.Description,
		Severity:         p.Severity,
		CorrectiveAction: p.CorrectiveAction,
		Responsible:      p.Responsible,
		Deadline:         p.Deadline,
		Status:           FindingOpen,
		Notes:            p.Notes,
	}
	m.findings[f.ID] = f
	return f, nil
}

func (m *memStore) UpdateFinding(ctx context.Context, id uuid.UUID, p UpdateFindingParams) (Finding, error) {
	f, ok := m.findings[id]
	if !ok {
		return Finding{}, repo.ErrNotFound
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.CorrectiveAction != nil {
		f.CorrectiveAction = *p.CorrectiveAction
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	m.findings[id] = f
	return f, nil
}

func (m *memStore) DeleteFinding(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.findings[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.findings, id)
	return nil
}

func (m *memStore) CountAuditsByStatus(ctx context.Context) (map[string]int, error) {
	return nil, nil
}

func (m *memStore) CountOpenFindingsBySeverity(ctx context.Context) (map[string]int, error) {
	return nil, nil
}

type stubTrail struct {
	entries []audittrail.Entry
}

func (t *stubTrail) Record(ctx context.Context, e audittrail.Entry) {
	t.entries = append(t.entries, e)
}

func seedAudit(t *testing.T, store *memStore) Audit {
	t.Helper()
	a, err := store.InsertAudit(context.Background(), InsertAuditParams{
		AuditType:     "interna",
		ScheduledDate: time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC),
		EvaluatedArea: "Linha de embalagem",
		ResponsibleID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func TestCreateAuditValidatesRequiredFields(t *testing.T) {
	svc := NewService(newMemStore(), &stubTrail{})

	_, err := svc.CreateAudit(context.Background(), uuid.New(), CreateAuditInput{
		AuditType:     "  ",
		ScheduledDate: time.Now(),
		EvaluatedArea: "Armazém",
		ResponsibleID: uuid.New(),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("esperava ErrValidation, obteve %v", err)
	}
}

func TestCompletingAuditSetsExecutedDate(t *testing.T) {
	store := newMemStore()
	trail := &stubTrail{}
	svc := NewService(store, trail)
	a := seedAudit(t, store)

	status := "completed"
	after, err := svc.UpdateAudit(context.Background(), uuid.New(), a.ID, UpdateAuditInput{Status: &status})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if after.Status != StatusCompleted {
		t.Fatalf("status = %s", after.Status)
	}
	if after.ExecutedDate == nil {
		t.Fatal("concluir deveria preencher a data de execução")
	}

	// Voltar para agendada limpa a data de execução.
	status = "scheduled"
	after, err = svc.UpdateAudit(context.Background(), uuid.New(), a.ID, UpdateAuditInput{Status: &status})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if after.ExecutedDate != nil {
		t.Fatal("reagendar deveria limpar a data de execução")
	}
}

func TestUpdateAuditNormalizesStatusSpelling(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubTrail{})
	a := seedAudit(t, store)

	status := "In-Progress"
	after, err := svc.UpdateAudit(context.Background(), uuid.New(), a.ID, UpdateAuditInput{Status: &status})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if after.Status != StatusInProgress {
		t.Fatalf("esperava in_progress, obteve %s", after.Status)
	}
}

func TestFindingMismatchedAuditIsNotFound(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubTrail{})
	a := seedAudit(t, store)
	other := seedAudit(t, store)

	f, err := svc.CreateFinding(context.Background(), uuid.New(), a.ID, CreateFindingInput{
		Description: "Registro de temperatura ausente",
		Severity:    "major",
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	_, err = svc.CloseFinding(context.Background(), uuid.New(), other.ID, f.ID)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("vínculo divergente deveria ser not found, obteve %v", err)
	}
}

func TestCloseThenReopenPreservesCorrectiveAction(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubTrail{})
	a := seedAudit(t, store)

	f, err := svc.CreateFinding(context.Background(), uuid.New(), a.ID, CreateFindingInput{
		Description:      "Calibração vencida no termômetro da câmara 2",
		Severity:         "critical",
		CorrectiveAction: "Recalibrar e atualizar o plano de manutenção",
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	closed, err := svc.CloseFinding(context.Background(), uuid.New(), a.ID, f.ID)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if closed.Status != FindingClosed {
		t.Fatalf("status = %s", closed.Status)
	}

	reopened, err := svc.ReopenFinding(context.Background(), uuid.New(), a.ID, f.ID)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if reopened.Status != FindingOpen {
		t.Fatalf("status = %s", reopened.Status)
	}
	if reopened.CorrectiveAction != f.CorrectiveAction {
		t.Fatal("reabrir não pode perder o plano de ação corretiva")
	}
}

func TestCreateFindingRejectsUnknownSeverity(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubTrail{})
	a := seedAudit(t, store)

	_, err := svc.CreateFinding(context.Background(), uuid.New(), a.ID, CreateFindingInput{
		Description: "Falta de EPI",
		Severity:    "catastrófica",
	})
	if !errors.Is(err, ErrInvalidSeverity) {
		t.Fatalf("esperava ErrInvalidSeverity, obteve %v", err)
	}
}

func TestMutationsProduceOneTrailEntryEach(t *testing.T) {
	store := newMemStore()
	trail := &stubTrail{}
	svc := NewService(store, trail)

	a, err := svc.CreateAudit(context.Background(), uuid.New(), CreateAuditInput{
		AuditType:     "externa",
		ScheduledDate: time.Now(),
		EvaluatedArea: "Pomar norte",
		ResponsibleID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	desc := "Auditoria de recertificação"
	if _, err := svc.UpdateAudit(context.Background(), uuid.New(), a.ID, UpdateAuditInput{Description: &desc}); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if err := svc.DeleteAudit(context.Background(), uuid.New(), a.ID); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	if len(trail.entries) != 3 {
		t.Fatalf("esperava 3 entradas na trilha, obteve %d", len(trail.entries))
	}
	for _, e := range trail.entries {
		if e.EntityType != "audit" {
			t.Fatalf("entity_type inesperado: %s", e.EntityType)
		}
		if e.EntityID == nil || *e.EntityID != a.ID {
			t.Fatal("entrada deveria apontar para a auditoria")
		}
	}
	if trail.entries[1].Changes["description"].New != desc {
		t.Fatalf("diff da atualização deveria conter a descrição nova: %+v", trail.entries[1].Changes)
	}
}

func TestComplianceRate(t *testing.T) {
	if got := (Audit{}).ComplianceRate(); got != 100 {
		t.Fatalf("sem achados deveria ser 100%%, obteve %v", got)
	}
	a := Audit{TotalFindings: 4, OpenFindings: 1}
	if got := a.ComplianceRate(); got != 75 {
		t.Fatalf("esperava 75%%, obteve %v", got)
	}
}
