package alert

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/cert"
	"github.com/frutosdouro/conformidade/internal/config"
	"github.com/frutosdouro/conformidade/internal/mailer"
	"github.com/frutosdouro/conformidade/internal/obs"
)

// thresholds são os limiares fixos da varredura, em dias até o vencimento.
// O disparo é por igualdade exata, nunca por "menor ou igual": por isso a
// varredura precisa rodar ao menos uma vez por dia-calendário.
var thresholds = [3]int{60, 30, 15}

// CertStore é a visão de certificações exigida pela varredura.
type CertStore interface {
	ListForSweep(ctx context.Context) ([]cert.Certification, error)
	ClaimAlertFlag(ctx context.Context, id uuid.UUID, threshold int) (bool, error)
	RefreshStatuses(ctx context.Context, today time.Time) (int64, error)
}

// AlertStore persiste os alertas gerados.
type AlertStore interface {
	Insert(ctx context.Context, a Alert) (Alert, error)
}

// Service executa a varredura periódica de vencimentos e despacha alertas.
type Service struct {
	certs  CertStore
	alerts AlertStore
	sender mailer.Sender
	trail  audittrail.Recorder
	clock  cert.Clock
	cfg    config.AlertConfig
	logger zerolog.Logger

	once   sync.Once
	cancel context.CancelFunc
}

func NewService(certs CertStore, alerts AlertStore, sender mailer.Sender, trail audittrail.Recorder, clock cert.Clock, cfg config.AlertConfig, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = cert.SystemClock
	}
	if sender == nil {
		sender = mailer.NoopSender{}
	}
	return &Service{
		certs:  certs,
		alerts: alerts,
		sender: sender,
		trail:  trail,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Start inicia o loop periódico. Safe para chamar múltiplas vezes.
func (s *Service) Start(parent context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.cancel = cancel
		go s.runLoop(ctx)
	})
}

// Stop encerra o loop periódico.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Service) runLoop(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("alert: varredura iniciada")

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("alert: primeira varredura falhou")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("alert: varredura encerrada")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("alert: varredura periódica falhou")
			}
		}
	}
}

// RunOnce percorre todas as certificações e dispara os limiares que caem
// exatamente no dia corrente. Cada limiar é one-shot: o flag é reivindicado
// atomicamente antes do envio, então varreduras concorrentes não duplicam
// disparo. Falha de entrega não desfaz flag nem alerta persistido.
func (s *Service) RunOnce(ctx context.Context) ([]Firing, error) {
	obs.SweepRuns.Inc()
	today := s.clock.Today()

	if _, err := s.certs.RefreshStatuses(ctx, today); err != nil {
		s.logger.Warn().Err(err).Msg("alert: falha ao atualizar status persistidos")
	}

	certs, err := s.certs.ListForSweep(ctx)
	if err != nil {
		return nil, fmt.Errorf("listar certificações: %w", err)
	}

	var firings []Firing
	for _, c := range certs {
		days := cert.DaysToExpiration(c.ExpirationDate, today)
		for _, threshold := range thresholds {
			if days != threshold {
				continue
			}

			claimed, err := s.certs.ClaimAlertFlag(ctx, c.ID, threshold)
			if err != nil {
				s.logger.Error().Err(err).Str("certification", c.Name).Int("threshold", threshold).
					Msg("alert: falha ao reivindicar flag")
				continue
			}
			if !claimed {
				continue
			}

			firings = append(firings, s.dispatch(ctx, c, threshold))
		}
	}
	return firings, nil
}

// dispatch envia o e-mail e persiste o alerta. O flag já foi reivindicado;
// daqui em diante só se registra o desfecho.
func (s *Service) dispatch(ctx context.Context, c cert.Certification, threshold int) Firing {
	subject, body, htmlBody := renderExpiration(c, threshold)
	severity := severityFor(threshold)

	delivered := true
	if err := s.sender.Send(ctx, c.ResponsibleEmail, subject, body, htmlBody); err != nil {
		delivered = false
		obs.DeliveryFailures.Inc()
		s.logger.Error().Err(err).
			Str("certification", c.Name).
			Str("recipient", c.ResponsibleEmail).
			Int("threshold", threshold).
			Msg("alert: falha de entrega, alerta segue registrado")
	}

	a := Alert{
		AlertType:      TypeExpiration,
		RelatedID:      &c.ID,
		Title:          subject,
		Message:        body,
		Severity:       severity,
		RecipientEmail: c.ResponsibleEmail,
		Sent:           delivered,
	}
	if delivered {
		now := time.Now()
		a.SentAt = &now
	}

	stored, err := s.alerts.Insert(ctx, a)
	if err != nil {
		s.logger.Error().Err(err).Str("certification", c.Name).
			Msg("alert: falha ao persistir alerta")
	} else {
		s.trail.Record(ctx, audittrail.Entry{
			Action:     audittrail.ActionAlert,
			EntityType: "alert",
			EntityID:   audittrail.Ref(stored.ID),
			Changes: map[string]audittrail.FieldChange{
				"alert_type":      {New: TypeExpiration},
				"related_id":      {New: c.ID.String()},
				"severity":        {New: severity},
				"recipient_email": {New: c.ResponsibleEmail},
				"sent":            {New: delivered},
			},
		})
	}

	obs.AlertsDispatched.WithLabelValues(strconv.Itoa(threshold)).Inc()
	return Firing{CertificationID: c.ID, Threshold: threshold, Delivered: delivered}
}

// renderExpiration monta assunto e corpos do aviso de vencimento.
func renderExpiration(c cert.Certification, threshold int) (subject, body, htmlBody string) {
	expiration := c.ExpirationDate.Format("02/01/2006")

	subject = fmt.Sprintf("Certificação %s vence em %d dias", c.Name, threshold)

	body = fmt.Sprintf(
		"A certificação %s (%s), emitida por %s, vence em %d dias, no dia %s.\n\n"+
			"Responsável: %s\n\n"+
			"Inicie o processo de renovação para manter a conformidade.",
		c.Name, c.Norm, c.IssuingEntity, threshold, expiration, c.ResponsibleName)

	htmlBody = fmt.Sprintf(
		`<h2>Aviso de vencimento</h2>
<p>A certificação <strong>%s</strong> (%s), emitida por %s, vence em <strong>%d dias</strong>, no dia %s.</p>
<p>Responsável: %s</p>
<p>Inicie o processo de renovação para manter a conformidade.</p>`,
		c.Name, c.Norm, c.IssuingEntity, threshold, expiration, c.ResponsibleName)

	return subject, body, htmlBody
}
