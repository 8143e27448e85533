package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frutosdouro/conformidade/internal/db"
)

// migrate aplica os arquivos de migrations/ em ordem lexicográfica,
// registrando cada um em schema_migrations para não reaplicar.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	dir := flag.String("dir", "migrations", "diretório com os arquivos .sql")
	flag.Parse()

	_ = godotenv.Load()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		log.Fatal().Err(err).Msg("falha ao preparar schema_migrations")
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *dir).Msg("falha ao ler diretório de migrações")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			log.Fatal().Err(err).Str("migration", name).Msg("falha ao consultar schema_migrations")
		}
		if exists {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(*dir, name))
		if err != nil {
			log.Fatal().Err(err).Str("migration", name).Msg("falha ao ler migração")
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("falha ao abrir transação")
		}
		if _, err := tx.Exec(ctx, string(raw)); err != nil {
			_ = tx.Rollback(ctx)
			log.Fatal().Err(err).Str("migration", name).Msg("migração falhou")
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			log.Fatal().Err(err).Str("migration", name).Msg("falha ao registrar migração")
		}
		if err := tx.Commit(ctx); err != nil {
			log.Fatal().Err(err).Str("migration", name).Msg("falha ao confirmar migração")
		}

		log.Info().Str("migration", name).Msg("aplicada")
		applied++
	}

	log.Info().Int("applied", applied).Int("total", len(files)).Msg("migrações em dia")
}
