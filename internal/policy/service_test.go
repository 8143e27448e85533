package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/repo"
)

// memStore simula políticas, confirmações e a semeadura transacional.
type memStore struct {
	policies      map[uuid.UUID]Policy
	confirmations map[uuid.UUID][]Confirmation
	activeUsers   []uuid.UUID
}

func newMemStore(activeUsers ...uuid.UUID) *memStore {
	return &memStore{
		policies:      make(map[uuid.UUID]Policy),
		confirmations: make(map[uuid.UUID][]Confirmation),
		activeUsers:   activeUsers,
	}
}

func (m *memStore) List(ctx context.Context, onlyActive bool) ([]Policy, error) {
	var out []Policy
	for _, p := range m.policies {
		if onlyActive && !p.IsActive {
			continue
		}
		out = append(out, m.withCounts(p))
	}
	return out, nil
}

func (m *memStore) withCounts(p Policy) Policy {
	confirmations := m.confirmations[p.ID]
	p.TotalConfirmations = len(confirmations)
	p.Confirmed = 0
	for _, c := range confirmations {
		if c.Confirmed {
			p.Confirmed++
		}
	}
	return p
}

func (m *memStore) Get(ctx context.Context, id uuid.UUID) (Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return Policy{}, repo.ErrNotFound
	}
	return m.withCounts(p), nil
}

func (m *memStore) Insert(ctx context.Context, in InsertParams) (Policy, error) {
	p := Policy{
		ID:                   uuid.New(),
		Title:                in.Title,
		Description:          in.Description,
		Content:              in.Content,
		Version:              in.Version,
		EffectiveDate:        in.EffectiveDate,
		RequiresConfirmation: in.RequiresConfirmation,
		IsActive:             true,
	}
	m.policies[p.ID] = p

	if in.RequiresConfirmation {
		for _, userID := range m.activeUsers {
			m.confirmations[p.ID] = append(m.confirmations[p.ID], Confirmation{
				ID:       uuid.New(),
				PolicyID: p.ID,
				UserID:   userID,
			})
		}
	}
	return m.withCounts(p), nil
}

func (m *memStore) Update(ctx context.Context, id uuid.UUID, in UpdateParams) (Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return Policy{}, repo.ErrNotFound
	}
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	m.policies[id] = p
	return m.withCounts(p), nil
}

func (m *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.policies[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.policies, id)
	delete(m.confirmations, id)
	return nil
}

func (m *memStore) ListConfirmations(ctx context.Context, policyID uuid.UUID) ([]Confirmation, error) {
	return m.confirmations[policyID], nil
}

func (m *memStore) Confirm(ctx context.Context, policyID, userID uuid.UUID, signature, ip, notes string) (Confirmation, error) {
	now := time.Now()
	list := m.confirmations[policyID]
	for i, c := range list {
		if c.UserID == userID {
			list[i].Confirmed = true
			list[i].ConfirmedAt = &now
			list[i].DigitalSignature = signature
			list[i].IPAddress = ip
			return list[i], nil
		}
	}
	c := Confirmation{
		ID: uuid.New(), PolicyID: policyID, UserID: userID,
		Confirmed: true, ConfirmedAt: &now, DigitalSignature: signature, IPAddress: ip,
	}
	m.confirmations[policyID] = append(list, c)
	return c, nil
}

func (m *memStore) CountPendingConfirmations(ctx context.Context) (int, error) {
	total := 0
	for policyID, list := range m.confirmations {
		p := m.policies[policyID]
		if !p.IsActive || !p.RequiresConfirmation {
			continue
		}
		for _, c := range list {
			if !c.Confirmed {
				total++
			}
		}
	}
	return total, nil
}

func (m *memStore) PendingForUser(ctx context.Context, userID uuid.UUID) ([]Policy, error) {
	var out []Policy
	for policyID, list := range m.confirmations {
		for _, c := range list {
			if c.UserID == userID && !c.Confirmed {
				out = append(out, m.withCounts(m.policies[policyID]))
			}
		}
	}
	return out, nil
}

type stubTrail struct {
	entries []audittrail.Entry
}

func (t *stubTrail) Record(ctx context.Context, e audittrail.Entry) {
	t.entries = append(t.entries, e)
}

func publish(t *testing.T, svc *Service, requires bool) Policy {
	t.Helper()
	p, err := svc.Publish(context.Background(), uuid.New(), PublishInput{
		Title:                "Política de Segurança Alimentar",
		Version:              "2.1",
		EffectiveDate:        time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		RequiresConfirmation: requires,
	})
	if err != nil {
		t.Fatalf("publicar: %v", err)
	}
	return p
}

func TestPublishSeedsPendingConfirmations(t *testing.T) {
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	store := newMemStore(users...)
	svc := NewService(store, &stubTrail{})

	p := publish(t, svc, true)

	if p.TotalConfirmations != 3 {
		t.Fatalf("esperava 3 pendências, obteve %d", p.TotalConfirmations)
	}
	if p.Confirmed != 0 {
		t.Fatalf("ninguém confirmou ainda, obteve %d", p.Confirmed)
	}
	if rate := p.ConfirmationRate(); rate != 0 {
		t.Fatalf("taxa inicial deveria ser 0%%, obteve %v", rate)
	}
}

func TestPublishWithoutConfirmationRequirementSeedsNothing(t *testing.T) {
	store := newMemStore(uuid.New())
	svc := NewService(store, &stubTrail{})

	p := publish(t, svc, false)

	if p.TotalConfirmations != 0 {
		t.Fatalf("política sem exigência não pré-cria pendências, obteve %d", p.TotalConfirmations)
	}
	if rate := p.ConfirmationRate(); rate != 100 {
		t.Fatalf("sem pendências a taxa é 100%%, obteve %v", rate)
	}
}

func TestPublishRequiresTitle(t *testing.T) {
	svc := NewService(newMemStore(), &stubTrail{})

	_, err := svc.Publish(context.Background(), uuid.New(), PublishInput{
		Title:         "   ",
		EffectiveDate: time.Now(),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("esperava ErrValidation, obteve %v", err)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	user := uuid.New()
	store := newMemStore(user)
	svc := NewService(store, &stubTrail{})
	p := publish(t, svc, true)

	first, err := svc.Confirm(context.Background(), user, p.ID, "Ana Souza", "10.0.0.7", "")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if !first.Confirmed || first.ConfirmedAt == nil {
		t.Fatalf("confirmação inesperada: %+v", first)
	}

	second, err := svc.Confirm(context.Background(), user, p.ID, "Ana Souza", "10.0.0.7", "")
	if err != nil {
		t.Fatalf("confirmar de novo não é erro: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("reconfirmação não pode criar linha nova")
	}

	after, _ := store.Get(context.Background(), p.ID)
	if after.Confirmed != 1 || after.TotalConfirmations != 1 {
		t.Fatalf("contagem inesperada: %d/%d", after.Confirmed, after.TotalConfirmations)
	}
}

func TestConfirmRejectsInactivePolicy(t *testing.T) {
	user := uuid.New()
	store := newMemStore(user)
	svc := NewService(store, &stubTrail{})
	p := publish(t, svc, true)

	inactive := false
	if _, err := svc.Update(context.Background(), uuid.New(), p.ID, UpdateInput{IsActive: &inactive}); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	_, err := svc.Confirm(context.Background(), user, p.ID, "", "", "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("esperava ErrValidation, obteve %v", err)
	}
}

func TestDeleteCascadesConfirmations(t *testing.T) {
	users := []uuid.UUID{uuid.New(), uuid.New()}
	store := newMemStore(users...)
	svc := NewService(store, &stubTrail{})
	p := publish(t, svc, true)

	if err := svc.Delete(context.Background(), uuid.New(), p.ID); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	if _, err := svc.Get(context.Background(), p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("política removida deveria sumir, obteve %v", err)
	}
	if len(store.confirmations[p.ID]) != 0 {
		t.Fatal("confirmações deveriam cair junto com a política")
	}
}

func TestConfirmRecordsTrailWithOrigin(t *testing.T) {
	user := uuid.New()
	store := newMemStore(user)
	trail := &stubTrail{}
	svc := NewService(store, trail)
	p := publish(t, svc, true)

	if _, err := svc.Confirm(context.Background(), user, p.ID, "Ana", "192.168.0.4", ""); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	last := trail.entries[len(trail.entries)-1]
	if last.Action != audittrail.ActionConfirm || last.EntityType != "policy_confirmation" {
		t.Fatalf("entrada inesperada: %+v", last)
	}
	if last.IP != "192.168.0.4" {
		t.Fatalf("origem deveria constar na trilha, obteve %q", last.IP)
	}
}
