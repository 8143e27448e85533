package cert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frutosdouro/conformidade/internal/audittrail"
)

type stubStore struct {
	listFn    func(ctx context.Context, f ListFilter) ([]Certification, error)
	getFn     func(ctx context.Context, id uuid.UUID) (Certification, error)
	insertFn  func(ctx context.Context, p InsertParams) (Certification, error)
	updateFn  func(ctx context.Context, id uuid.UUID, p UpdateParams) (Certification, error)
	deleteFn  func(ctx context.Context, id uuid.UUID) error
	countFn   func(ctx context.Context) (map[string]int, error)
	insertCnt int
}

func (s *stubStore) List(ctx context.Context, f ListFilter) ([]Certification, error) {
	return s.listFn(ctx, f)
}

func (s *stubStore) Get(ctx context.Context, id uuid.UUID) (Certification, error) {
	return s.getFn(ctx, id)
}

func (s *stubStore) Insert(ctx context.Context, p InsertParams) (Certification, error) {
	s.insertCnt++
	return s.insertFn(ctx, p)
}

func (s *stubStore) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Certification, error) {
	return s.updateFn(ctx, id, p)
}

func (s *stubStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.deleteFn(ctx, id)
}

func (s *stubStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.countFn(ctx)
}

type stubTrail struct {
	entries []audittrail.Entry
}

func (t *stubTrail) Record(ctx context.Context, e audittrail.Entry) {
	t.entries = append(t.entries, e)
}

func fixedService(store *stubStore, trail *stubTrail, today time.Time) *Service {
	return NewService(store, trail, FixedClock{Date: today}, nil, zerolog.Nop())
}

func TestCreateRejectsExpirationBeforeEmission(t *testing.T) {
	store := &stubStore{}
	trail := &stubTrail{}
	svc := fixedService(store, trail, date(2026, time.March, 1))

	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Name:           "GlobalGAP",
		Norm:           "IFA v6",
		IssuingEntity:  "SGS",
		EmissionDate:   date(2026, time.March, 1),
		ExpirationDate: date(2026, time.March, 1),
		ResponsibleID:  uuid.New(),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("esperava ErrValidation, obteve %v", err)
	}
	if store.insertCnt != 0 {
		t.Fatal("validação reprovada não pode persistir nada")
	}
	if len(trail.entries) != 0 {
		t.Fatal("validação reprovada não pode gerar trilha")
	}
}

func TestCreatePersistsAndRecordsTrail(t *testing.T) {
	today := date(2026, time.March, 1)
	certID := uuid.New()

	store := &stubStore{
		insertFn: func(ctx context.Context, p InsertParams) (Certification, error) {
			if p.Status != StatusCurrent {
				t.Fatalf("status inicial deveria ser current, obteve %s", p.Status)
			}
			return Certification{
				ID: certID, Name: p.Name, Norm: p.Norm, IssuingEntity: p.IssuingEntity,
				EmissionDate: p.EmissionDate, ExpirationDate: p.ExpirationDate,
				ResponsibleID: p.ResponsibleID, Status: p.Status,
			}, nil
		},
	}
	trail := &stubTrail{}
	svc := fixedService(store, trail, today)

	c, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Name:           "BRCGS Food",
		Norm:           "Issue 9",
		IssuingEntity:  "Bureau Veritas",
		EmissionDate:   date(2025, time.March, 1),
		ExpirationDate: date(2027, time.March, 1),
		ResponsibleID:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if c.ID != certID {
		t.Fatal("id da certificação criada não retornou")
	}

	if len(trail.entries) != 1 {
		t.Fatalf("esperava 1 entrada na trilha, obteve %d", len(trail.entries))
	}
	e := trail.entries[0]
	if e.EntityType != "certification" || e.Action != audittrail.ActionCreate {
		t.Fatalf("entrada inesperada: %+v", e)
	}
	if e.EntityID == nil || *e.EntityID != certID {
		t.Fatal("entrada da trilha deveria apontar para a certificação criada")
	}
}

func TestUpdateExpirationKeepsAlertFlags(t *testing.T) {
	today := date(2026, time.March, 1)
	certID := uuid.New()
	existing := Certification{
		ID:             certID,
		Name:           "GlobalGAP",
		Norm:           "IFA v6",
		IssuingEntity:  "SGS",
		EmissionDate:   date(2025, time.January, 1),
		ExpirationDate: date(2026, time.April, 1),
		Status:         StatusCurrent,
		AlertSent60:    true,
	}

	store := &stubStore{
		getFn: func(ctx context.Context, id uuid.UUID) (Certification, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, p UpdateParams) (Certification, error) {
			out := existing
			if p.ExpirationDate != nil {
				out.ExpirationDate = *p.ExpirationDate
			}
			return out, nil
		},
	}
	trail := &stubTrail{}
	svc := fixedService(store, trail, today)

	newExp := date(2027, time.April, 1)
	after, err := svc.Update(context.Background(), uuid.New(), certID, UpdateInput{ExpirationDate: &newExp})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if !after.AlertSent60 {
		t.Fatal("edição não pode mexer nos flags one-shot da varredura")
	}

	change, ok := trail.entries[0].Changes["expiration_date"]
	if !ok {
		t.Fatal("diff deveria registrar expiration_date")
	}
	if change.New != "2027-04-01" {
		t.Fatalf("novo vencimento inesperado no diff: %v", change.New)
	}
}

func TestUpdateRejectsInvertedDates(t *testing.T) {
	existing := Certification{
		ID:             uuid.New(),
		EmissionDate:   date(2025, time.January, 1),
		ExpirationDate: date(2026, time.January, 1),
	}
	store := &stubStore{
		getFn: func(ctx context.Context, id uuid.UUID) (Certification, error) {
			return existing, nil
		},
	}
	svc := fixedService(store, &stubTrail{}, date(2026, time.March, 1))

	bad := date(2024, time.December, 1)
	_, err := svc.Update(context.Background(), uuid.New(), existing.ID, UpdateInput{ExpirationDate: &bad})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("esperava ErrValidation, obteve %v", err)
	}
}

func TestListDerivesStatusWithoutWriting(t *testing.T) {
	today := date(2026, time.June, 1)
	store := &stubStore{
		listFn: func(ctx context.Context, f ListFilter) ([]Certification, error) {
			return []Certification{
				{Name: "A", Status: StatusCurrent, ExpirationDate: date(2026, time.May, 20)},
				{Name: "B", Status: StatusCurrent, ExpirationDate: date(2026, time.June, 10)},
			}, nil
		},
	}
	svc := fixedService(store, &stubTrail{}, today)

	certs, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if certs[0].Status != StatusExpired {
		t.Fatalf("certificação vencida deveria listar como expired, obteve %s", certs[0].Status)
	}
	if certs[1].Status != StatusExpiringSoon {
		t.Fatalf("certificação na janela deveria listar como expiring_soon, obteve %s", certs[1].Status)
	}
}

func TestAttachDocumentRejectsUnknownContentType(t *testing.T) {
	svc := fixedService(&stubStore{}, &stubTrail{}, date(2026, time.March, 1))

	_, err := svc.AttachDocument(context.Background(), uuid.New(), uuid.New(),
		"certificado.exe", "application/octet-stream", []byte{1})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("esperava ErrValidation, obteve %v", err)
	}
}
