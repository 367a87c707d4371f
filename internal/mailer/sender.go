// Package mailer превращает события обменов в письма и отправляет их через SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/rajivgeraev/rewear-api/internal/config"
)

// Sender отправляет письмо
type Sender interface {
	Send(ctx context.Context, to []string, subject, bodyHTML, bodyText string) error
}

// SMTPSender отправляет письма через gomail
type SMTPSender struct {
	cfg    config.SMTPConfig
	log    *zap.Logger
	dialer *gomail.Dialer
}

// NewSMTPSender настраивает соединение с почтовым сервером
func NewSMTPSender(cfg config.SMTPConfig, log *zap.Logger) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.SenderEmail == "" {
		return nil, errors.New("не заданы SMTP_HOST, SMTP_PORT или SMTP_SENDER_EMAIL")
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	switch strings.ToLower(cfg.Encryption) {
	case "ssl":
		dialer.SSL = true
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	case "tls", "starttls":
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}

	return &SMTPSender{cfg: cfg, log: log, dialer: dialer}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject, bodyHTML, bodyText string) error {
	if len(to) == 0 {
		return errors.New("не указаны получатели письма")
	}
	if bodyHTML == "" && bodyText == "" {
		return errors.New("пустое тело письма")
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.SenderEmail, s.cfg.SenderName)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	if bodyHTML != "" {
		m.SetBody("text/html", bodyHTML)
		if bodyText != "" {
			m.AddAlternative("text/plain", bodyText)
		}
	} else {
		m.SetBody("text/plain", bodyText)
	}

	// DialAndSend не принимает контекст, поэтому ждем его в отдельной горутине
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("отправка письма прервана: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ошибка отправки письма: %w", err)
		}
	}

	s.log.Info("✅ Письмо отправлено", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}
