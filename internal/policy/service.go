package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/audittrail"
)

var (
	// ErrValidation indica entrada malformada ou que viola restrição de negócio.
	ErrValidation = errors.New("dados inválidos")
)

// Store é a persistência exigida pelo serviço de políticas.
type Store interface {
	List(ctx context.Context, onlyActive bool) ([]Policy, error)
	Get(ctx context.Context, id uuid.UUID) (Policy, error)
	Insert(ctx context.Context, p InsertParams) (Policy, error)
	Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Policy, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListConfirmations(ctx context.Context, policyID uuid.UUID) ([]Confirmation, error)
	Confirm(ctx context.Context, policyID, userID uuid.UUID, signature, ip, notes string) (Confirmation, error)
	PendingForUser(ctx context.Context, userID uuid.UUID) ([]Policy, error)
	CountPendingConfirmations(ctx context.Context) (int, error)
}

// Service reúne regras de negócio de políticas internas.
type Service struct {
	store Store
	trail audittrail.Recorder
}

func NewService(store Store, trail audittrail.Recorder) *Service {
	return &Service{store: store, trail: trail}
}

func (s *Service) List(ctx context.Context, onlyActive bool) ([]Policy, error) {
	return s.store.List(ctx, onlyActive)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Policy, error) {
	return s.store.Get(ctx, id)
}

// PublishInput carrega os campos de publicação de uma política.
type PublishInput struct {
	Title                string
	Description          string
	Content              string
	Version              string
	EffectiveDate        time.Time
	RequiresConfirmation bool
}

// Publish valida e publica a política. Quando ela exige ciência, cada usuário
// ativo já nasce com uma pendência de confirmação.
func (s *Service) Publish(ctx context.Context, actorID uuid.UUID, in PublishInput) (Policy, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Version = strings.TrimSpace(in.Version)

	if in.Title == "" {
		return Policy{}, fmt.Errorf("%w: título é obrigatório", ErrValidation)
	}
	if in.EffectiveDate.IsZero() {
		return Policy{}, fmt.Errorf("%w: data de vigência é obrigatória", ErrValidation)
	}
	if in.Version == "" {
		in.Version = "1.0"
	}

	p, err := s.store.Insert(ctx, InsertParams{
		Title:                in.Title,
		Description:          strings.TrimSpace(in.Description),
		Content:              in.Content,
		Version:              in.Version,
		EffectiveDate:        in.EffectiveDate,
		RequiresConfirmation: in.RequiresConfirmation,
	})
	if err != nil {
		return Policy{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionCreate,
		EntityType: "policy",
		EntityID:   audittrail.Ref(p.ID),
		Changes:    audittrail.Diff(nil, snapshot(p)),
	})
	return p, nil
}

// UpdateInput carrega alterações parciais de uma política.
type UpdateInput struct {
	Title         *string
	Description   *string
	Content       *string
	Version       *string
	EffectiveDate *time.Time
	IsActive      *bool
}

func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (Policy, error) {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return Policy{}, err
	}

	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return Policy{}, fmt.Errorf("%w: título é obrigatório", ErrValidation)
	}

	after, err := s.store.Update(ctx, id, UpdateParams{
		Title:         in.Title,
		Description:   in.Description,
		Content:       in.Content,
		Version:       in.Version,
		EffectiveDate: in.EffectiveDate,
		IsActive:      in.IsActive,
	})
	if err != nil {
		return Policy{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(actorID),
		Action:     audittrail.ActionUpdate,
		EntityType: "policy",
		EntityID:   audittrail.Ref(id),
		Changes:    audittrail.Diff(snapshot(before), snapshot(after)),
	})
	return after, nil
}

// Delete remove a política junto com todas as confirmações.
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
		EntityType: "policy",
		EntityID:   audittrail.Ref(id),
		Changes: map[string]audittrail.FieldChange{
			"title":   {Old: before.Title},
			"version": {Old: before.Version},
		},
	})
	return nil
}

func (s *Service) ListConfirmations(ctx context.Context, policyID uuid.UUID) ([]Confirmation, error) {
	if _, err := s.store.Get(ctx, policyID); err != nil {
		return nil, err
	}
	return s.store.ListConfirmations(ctx, policyID)
}

// Confirm registra a ciência do usuário sobre a política. Confirmar duas
// vezes não é erro: a segunda chamada apenas renova o carimbo.
func (s *Service) Confirm(ctx context.Context, userID, policyID uuid.UUID, signature, ip, notes string) (Confirmation, error) {
	p, err := s.store.Get(ctx, policyID)
	if err != nil {
		return Confirmation{}, err
	}
	if !p.IsActive {
		return Confirmation{}, fmt.Errorf("%w: política inativa não aceita confirmação", ErrValidation)
	}
	if !p.RequiresConfirmation {
		return Confirmation{}, fmt.Errorf("%w: política não exige confirmação de leitura", ErrValidation)
	}

	c, err := s.store.Confirm(ctx, policyID, userID, strings.TrimSpace(signature), ip, strings.TrimSpace(notes))
	if err != nil {
		return Confirmation{}, err
	}

	s.trail.Record(ctx, audittrail.Entry{
		ActorID:    audittrail.Ref(userID),
		Action:     audittrail.ActionConfirm,
		EntityType: "policy_confirmation",
		EntityID:   audittrail.Ref(c.ID),
		IP:         ip,
		Changes: map[string]audittrail.FieldChange{
			"policy_id": {New: policyID.String()},
			"user_id":   {New: userID.String()},
			"confirmed": {Old: false, New: true},
		},
	})
	return c, nil
}

// PendingForUser lista as políticas que ainda aguardam ciência do usuário.
func (s *Service) PendingForUser(ctx context.Context, userID uuid.UUID) ([]Policy, error) {
	return s.store.PendingForUser(ctx, userID)
}

// CountPendingConfirmations conta pendências abertas em políticas ativas.
func (s *Service) CountPendingConfirmations(ctx context.Context) (int, error) {
	return s.store.CountPendingConfirmations(ctx)
}

func snapshot(p Policy) map[string]any {
	return map[string]any{
		"title":                 p.Title,
		"description":           p.Description,
		"version":               p.Version,
		"effective_date":        p.EffectiveDate.Format("2006-01-02"),
		"requires_confirmation": p.RequiresConfirmation,
		"is_active":             p.IsActive,
	}
}
