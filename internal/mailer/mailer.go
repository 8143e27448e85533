package mailer

import (
	"context"
	"errors"
)

// Sender entrega notificações para destinatários externos.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body, htmlBody string) error
}

// NoopSender devolve erro indicando que não há servidor configurado.
type NoopSender struct{}

// Send sempre retorna erro, sinalizando que o recurso não está disponível.
func (NoopSender) Send(ctx context.Context, recipient, subject, body, htmlBody string) error {
	return errors.New("mailer: servidor SMTP não configurado")
}
