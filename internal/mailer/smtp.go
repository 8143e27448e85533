package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/frutosdouro/conformidade/internal/config"
)

// SMTPSender envia e-mails via SMTP com corpo texto e HTML alternativos.
type SMTPSender struct {
	cfg config.MailConfig
}

// NewSMTPSender devolve nil quando não há servidor configurado, permitindo
// que o chamador caia no NoopSender.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	if !cfg.Enabled() {
		return nil
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, recipient, subject, body, htmlBody string) error {
	if s == nil {
		return errors.New("mailer: servidor SMTP não configurado")
	}
	if strings.TrimSpace(recipient) == "" {
		return errors.New("mailer: destinatário vazio")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.buildMessage(recipient, subject, body, htmlBody)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	client, err := s.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("mailer: conectar %s: %w", addr, err)
	}
	defer client.Close()

	if s.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("mailer: starttls: %w", err)
			}
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mailer: auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}

	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = deadline

	return smtp.Dial(addr)
}

// buildMessage monta multipart/alternative quando há corpo HTML.
func (s *SMTPSender) buildMessage(recipient, subject, body, htmlBody string) ([]byte, error) {
	var b strings.Builder

	b.WriteString("From: " + s.cfg.From + "\r\n")
	b.WriteString("To: " + recipient + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if strings.TrimSpace(htmlBody) == "" {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(body)
		return []byte(b.String()), nil
	}

	var parts strings.Builder
	writer := multipart.NewWriter(&parts)

	plain, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := plain.Write([]byte(body)); err != nil {
		return nil, err
	}

	html, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := html.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	b.WriteString("Content-Type: multipart/alternative; boundary=" + writer.Boundary() + "\r\n\r\n")
	b.WriteString(parts.String())
	return []byte(b.String()), nil
}
