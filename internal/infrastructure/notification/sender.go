package notification

import (
	"context"

	"lab-registration/internal/config"
	"lab-registration/pkg/logger"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Message is one rendered notification
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a rendered message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// EmailSender delivers messages over SMTP
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailSender(cfg *config.NotificationConfig) *EmailSender {
	return &EmailSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return err
	}

	logger.Debug("Email sent to %s", msg.To)
	return nil
}

// LogSender writes messages to the log instead of sending them
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Notification (delivery disabled)")
	return nil
}
