package audittrail

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubStore struct {
	insertFn func(ctx context.Context, e Entry) error
	listFn   func(ctx context.Context, f ListFilter) ([]Record, int, error)
}

func (s *stubStore) Insert(ctx context.Context, e Entry) error {
	return s.insertFn(ctx, e)
}

func (s *stubStore) List(ctx context.Context, f ListFilter) ([]Record, int, error) {
	return s.listFn(ctx, f)
}

func TestSanitizeRemovesSensitiveFields(t *testing.T) {
	changes := map[string]FieldChange{
		"username":      {Old: "ana", New: "ana.souza"},
		"password_hash": {Old: "h1", New: "h2"},
		"email":         {Old: "a@frutosdouro.pt", New: "ana@frutosdouro.pt"},
	}

	out := Sanitize("user", changes)

	if _, ok := out["password_hash"]; ok {
		t.Fatal("password_hash não deveria aparecer na trilha")
	}
	if len(out) != 2 {
		t.Fatalf("esperava 2 campos, obteve %d", len(out))
	}
}

func TestSanitizeUnknownEntityDropsDiff(t *testing.T) {
	changes := map[string]FieldChange{"anything": {Old: 1, New: 2}}
	if out := Sanitize("internal_secret", changes); out != nil {
		t.Fatalf("entidade desconhecida deveria perder o diff, obteve %v", out)
	}
}

func TestRecordPersistsSanitizedEntry(t *testing.T) {
	var got Entry
	store := &stubStore{
		insertFn: func(ctx context.Context, e Entry) error {
			got = e
			return nil
		},
	}

	trail := New(store, zerolog.Nop())
	actor := uuid.New()
	trail.Record(context.Background(), Entry{
		ActorID:    &actor,
		Action:     ActionUpdate,
		EntityType: "user",
		Changes: map[string]FieldChange{
			"full_name":     {Old: "Ana", New: "Ana Souza"},
			"password_hash": {Old: "x", New: "y"},
		},
	})

	if got.Action != ActionUpdate {
		t.Fatalf("action = %q", got.Action)
	}
	if _, ok := got.Changes["password_hash"]; ok {
		t.Fatal("entrada persistida não pode conter password_hash")
	}
	if _, ok := got.Changes["full_name"]; !ok {
		t.Fatal("campo permitido deveria sobreviver à sanitização")
	}
}

func TestRecordNeverPropagatesStoreFailure(t *testing.T) {
	store := &stubStore{
		insertFn: func(ctx context.Context, e Entry) error {
			return errors.New("conexão recusada")
		},
	}

	trail := New(store, zerolog.Nop())

	// A operação de negócio segue mesmo com a trilha indisponível.
	trail.Record(context.Background(), Entry{
		Action:     ActionDelete,
		EntityType: "certification",
	})
}

func TestRecordOnNilTrailIsNoop(t *testing.T) {
	var trail *Trail
	trail.Record(context.Background(), Entry{Action: ActionLogin, EntityType: "session"})
}

func TestDiffReturnsOnlyChangedFields(t *testing.T) {
	before := map[string]any{"status": "current", "notes": "ok"}
	after := map[string]any{"status": "expired", "notes": "ok"}

	changes := Diff(before, after)

	if len(changes) != 1 {
		t.Fatalf("esperava 1 mudança, obteve %d", len(changes))
	}
	c, ok := changes["status"]
	if !ok {
		t.Fatal("esperava mudança em status")
	}
	if c.Old != "current" || c.New != "expired" {
		t.Fatalf("mudança inesperada: %+v", c)
	}
}

func TestDiffWithoutChangesIsNil(t *testing.T) {
	snap := map[string]any{"status": "current"}
	if changes := Diff(snap, map[string]any{"status": "current"}); changes != nil {
		t.Fatalf("esperava nil, obteve %v", changes)
	}
}
