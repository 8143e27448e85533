package cert

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/repo"
	"github.com/frutosdouro/conformidade/internal/storage"
)

var (
	// ErrValidation indica entrada malformada ou que viola restrição de negócio.
	ErrValidation = errors.New("dados inválidos")
)

// Tipos de documento aceitos como comprovante de certificação.
var allowedDocumentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// Store é a persistência exigida pelo serviço de certificações.
type Store interface {
	List(ctx context.Context, f ListFilter) ([]Certification, error)
	Get(ctx context.Context, id uuid.UUID) (Certification, error)
	Insert(ctx context.Context, p InsertParams) (Certification, error)
	Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Certification, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Service concentra as regras de negócio das certificações.
type Service struct {
	store    Store
	trail    audittrail.Recorder
	clock    Clock
	uploader storage.Uploader
	log      zerolog.Logger
}

func NewService(store Store, trail audittrail.Recorder, clock Clock, uploader storage.Uploader, log zerolog.Logger) *Service {
	if clock == nil {
		clock = SystemClock
	}
	if uploader == nil {
		uploader = storage.NoopUploader{}
	}
	return &Service{store: store, trail: trail, clock: clock, uploader: uploader, log: log}
}

// List devolve certificações com o status derivado da data corrente, sem
// gravar nada. O campo persistido só é atualizado pela varredura.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Certification, error) {
	certs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	for i := range certs {
		certs[i].Status = certs[i].DerivedStatus(today)
	}
	return certs, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Certification, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Certification{}, err
	}
	c.Status = c.DerivedStatus(s.clock.Today())
	return c, nil
}

// CreateInput carrega os campos de criação vindos da borda HTTP.
type CreateInput struct {
	Name           string
	Norm           string
	IssuingEntity  string
	EmissionDate   time.Time
	ExpirationDate time.Time
	ResponsibleID  uuid.UUID
	Notes          string
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: nome é obrigatório", ErrValidation)
	}
	if strings.TrimSpace(in.Norm) == "" {
		return fmt.Errorf("%w: norma é obrigatória", ErrValidation)
	}
	if strings.TrimSpace(in.IssuingEntity) == "" {
		return fmt.Errorf("%w: entidade emissora é obrigatória", ErrValidation)
	}
	if in.ResponsibleID == uuid.Nil {
		return fmt.Errorf("%w: responsável é obrigatório", ErrValidation)
	}
	if in.EmissionDate.IsZero() || in.ExpirationDate.IsZero() {
		return fmt.Errorf("%w: datas de emissão e vencimento são obrigatórias", ErrValidation)
	}
	if !in.ExpirationDate.After(in.EmissionDate) {
		return fmt.Errorf("%w: vencimento deve ser posterior à emissão", ErrValidation)
	}
	return nil
}

// Create valida e persiste uma certificação nova. Nada é gravado quando a
// validação falha.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, in CreateInput) (Certification, error) {
	if err := in.validate(); err != nil {
		return Certification{}, err
	}

	status := StatusFor(DaysToExpiration(in.ExpirationDate, s.clock.Today()))

	c, err := s.store.Insert(ctx, InsertParams{
		Name:           strings.TrimSpace(in.Name),
		Norm:           strings.TrimSpace(in.Norm),
		IssuingEntity:  strings.TrimSpace(in.IssuingEntity),
		EmissionDate:   in.EmissionDate,
		ExpirationDate: in.ExpirationDate,
		ResponsibleID:  in.ResponsibleID,
		Notes:          strings.TrimSpace(in.Notes),
		Status:         status,
	})
	if err != nil {
		if errors.Is(err, repo.ErrReferenced) {
			return Certification{}, fmt.Errorf("%w: responsável inexistente", ErrValidation)
		}
		return Certification{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionCreate,
		EntityType: "certification",
		EntityID:   audittrail.Ref(c.ID),
		Changes:    audittrail.Diff(nil, snapshot(c)),
	})
	return c, nil
}

// UpdateInput carrega alterações parciais; campos nil ficam como estão.
type UpdateInput struct {
	Name           *string
	Norm           *string
	IssuingEntity  *string
	EmissionDate   *time.Time
	ExpirationDate *time.Time
	ResponsibleID  *uuid.UUID
	Notes          *string
	Status         *string
}

// Update aplica alterações parciais e revalida o par de datas resultante.
// Os flags one-shot de alerta não são tocados: eles pertencem à varredura
// e só andam de false para true.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (Certification, error) {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return Certification{}, err
	}

	emission := before.EmissionDate
	if in.EmissionDate != nil {
		emission = *in.EmissionDate
	}
	expiration := before.ExpirationDate
	if in.ExpirationDate != nil {
		expiration = *in.ExpirationDate
	}
	if !expiration.After(emission) {
		return Certification{}, fmt.Errorf("%w: vencimento deve ser posterior à emissão", ErrValidation)
	}
	if in.Status != nil && !validStatus(*in.Status) {
		return Certification{}, fmt.Errorf("%w: status desconhecido: %s", ErrValidation, *in.Status)
	}

	after, err := s.store.Update(ctx, id, UpdateParams{
		Name:           in.Name,
		Norm:           in.Norm,
		IssuingEntity:  in.IssuingEntity,
		EmissionDate:   in.EmissionDate,
		ExpirationDate: in.ExpirationDate,
		ResponsibleID:  in.ResponsibleID,
		Notes:          in.Notes,
		Status:         in.Status,
	})
	if err != nil {
		if errors.Is(err, repo.ErrReferenced) {
			return Certification{}, fmt.Errorf("%w: responsável inexistente", ErrValidation)
		}
		return Certification{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionUpdate,
		EntityType: "certification",
		EntityID:   audittrail.Ref(id),
		Changes:    audittrail.Diff(snapshot(before), snapshot(after)),
	})
	return after, nil
}

func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionDelete,
		EntityType: "certification",
		EntityID:   audittrail.Ref(id),
		Changes: map[string]audittrail.FieldChange{
			"name": {Old: before.Name},
			"norm": {Old: before.Norm},
		},
	})
	return nil
}

// AttachDocument envia o comprovante ao bucket e grava a URL pública.
func (s *Service) AttachDocument(ctx context.Context, actorID, id uuid.UUID, filename, contentType string, body []byte) (Certification, error) {
	ext, ok := allowedDocumentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return Certification{}, fmt.Errorf("%w: tipo de documento não aceito: %s", ErrValidation, contentType)
	}
	if len(body) == 0 {
		return Certification{}, fmt.Errorf("%w: documento vazio", ErrValidation)
	}

	before, err := s.store.Get(ctx, id)
	if err != nil {
		return Certification{}, err
	}

	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	if base == "" || base == "." {
		base = "documento"
	}
	key := fmt.Sprintf("certifications/%s/%d-%s%s", id, time.Now().Unix(), slugify(base), ext)

	result, err := s.uploader.Upload(ctx, storage.UploadInput{
		Key:         key,
		Body:        body,
		ContentType: contentType,
	})
	if err != nil {
		return Certification{}, err
	}

	after, err := s.store.Update(ctx, id, UpdateParams{DocumentURL: &result.URL})
	if err != nil {
		return Certification{}, err
	}

	var oldURL any
	if before.DocumentURL != nil {
		oldURL = *before.DocumentURL
	}
	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionUpdate,
		EntityType: "certification",
		EntityID:   audittrail.Ref(id),
		Changes: map[string]audittrail.FieldChange{
			"document_url": {Old: oldURL, New: result.URL},
		},
	})
	return after, nil
}

// CountByStatus resume o estado da carteira de certificações para o painel.
func (s *Service) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.store.CountByStatus(ctx)
}

func validStatus(status string) bool {
	switch status {
	case StatusCurrent, StatusExpiringSoon, StatusExpired, StatusPendingRenewal:
		return true
	}
	return false
}

func snapshot(c Certification) map[string]any {
	var doc any
	if c.DocumentURL != nil {
		doc = *c.DocumentURL
	}
	return map[string]any{
		"name":            c.Name,
		"norm":            c.Norm,
		"issuing_entity":  c.IssuingEntity,
		"emission_date":   midnight(c.EmissionDate).Format("2006-01-02"),
		"expiration_date": midnight(c.ExpirationDate).Format("2006-01-02"),
		"responsible":     c.ResponsibleName,
		"status":          c.Status,
		"document_url":    doc,
		"notes":           c.Notes,
	}
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "documento"
	}
	return out
}
