package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frutosdouro/conformidade/internal/alert"
	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/cert"
	"github.com/frutosdouro/conformidade/internal/config"
	"github.com/frutosdouro/conformidade/internal/db"
	"github.com/frutosdouro/conformidade/internal/mailer"
	"github.com/frutosdouro/conformidade/internal/obs"
)

// sweep roda uma única varredura de vencimentos e sai. Útil para cron
// externo quando a API roda com ALERT_SWEEP_ENABLED=false.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config inválida")
	}

	obs.Init()

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	trail := audittrail.New(audittrail.NewRepository(pool), log.With().Str("component", "audittrail").Logger())

	var sender mailer.Sender
	if smtp := mailer.NewSMTPSender(cfg.Mail); smtp != nil {
		sender = smtp
	}

	sweeper := alert.NewService(
		cert.NewRepository(pool),
		alert.NewRepository(pool),
		sender,
		trail,
		nil,
		cfg.Alerts,
		log.With().Str("component", "sweep").Logger(),
	)

	firings, err := sweeper.RunOnce(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("varredura falhou")
	}

	encoded, _ := json.MarshalIndent(firings, "", "  ")
	fmt.Println(string(encoded))
	log.Info().Int("dispatched", len(firings)).Msg("varredura concluída")
}
