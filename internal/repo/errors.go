package repo

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound é retornado quando nenhum registro é encontrado.
	ErrNotFound = errors.New("registro não encontrado")
	// ErrDuplicate indica violação de unicidade (username, email, par role/module...).
	ErrDuplicate = errors.New("registro duplicado")
	// ErrReferenced indica que o registro não pode ser removido enquanto houver referências.
	ErrReferenced = errors.New("registro referenciado por outras entidades")
	// ErrUnavailable indica que o banco está inacessível; leituras devem degradar, não quebrar.
	ErrUnavailable = errors.New("armazenamento indisponível")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Classify traduz erros do driver para os sentinelas do pacote.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicate
		case pgForeignKeyViolation:
			return ErrReferenced
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return ErrUnavailable
	}

	return err
}
