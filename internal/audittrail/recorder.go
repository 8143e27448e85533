package audittrail

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frutosdouro/conformidade/internal/obs"
)

// Recorder grava entradas na trilha. Implementações nunca bloqueiam a
// operação de negócio: falha de gravação vira log e métrica, não erro.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Store é a persistência mínima exigida pelo Trail.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, f ListFilter) ([]Record, int, error)
}

// Trail é o Recorder padrão, apoiado na tabela audit_log.
type Trail struct {
	store Store
	log   zerolog.Logger
}

func New(store Store, log zerolog.Logger) *Trail {
	return &Trail{store: store, log: log}
}

// Record sanitiza o diff e persiste a entrada. Qualquer falha é registrada
// e contabilizada, mas jamais propagada ao chamador.
func (t *Trail) Record(ctx context.Context, e Entry) {
	if t == nil {
		return
	}

	e.Changes = Sanitize(e.EntityType, e.Changes)

	if err := t.store.Insert(ctx, e); err != nil {
		obs.AuditTrailFailures.Inc()
		t.log.Error().Err(err).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Msg("trilha de auditoria: falha ao gravar entrada")
	}
}

// List expõe a consulta paginada da trilha para a camada HTTP.
func (t *Trail) List(ctx context.Context, f ListFilter) ([]Record, int, error) {
	return t.store.List(ctx, f)
}

// Ref converte um uuid em ponteiro, para preencher ActorID e EntityID.
func Ref(id uuid.UUID) *uuid.UUID {
	return &id
}
