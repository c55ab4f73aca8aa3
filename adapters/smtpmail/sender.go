package smtpmail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/goliatone/go-marketplace/core"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("smtpmail: host is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("smtpmail: port must be positive")
	}
	if strings.TrimSpace(c.From) == "" {
		return fmt.Errorf("smtpmail: from address is required")
	}
	return nil
}

func (c Config) addr() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(c.Port))
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Sender delivers notification emails over SMTP. Messages are composed as
// single part text/plain RFC 5322 documents.
type Sender struct {
	config Config
	send   SendFunc
	now    func() time.Time
}

type Option func(*Sender)

func WithSendFunc(send SendFunc) Option {
	return func(s *Sender) {
		if send != nil {
			s.send = send
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSender(cfg Config, opts ...Option) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sender{config: cfg, send: smtp.SendMail, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Sender) SendEmail(ctx context.Context, msg core.EmailMessage) error {
	if s == nil || s.send == nil {
		return fmt.Errorf("smtpmail: sender is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("smtpmail: recipient address is required")
	}
	raw, err := Compose(s.config, msg, s.now())
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	if err := s.send(s.config.addr(), auth, s.config.From, []string{to}, raw); err != nil {
		return fmt.Errorf("smtpmail: send to %s: %w", to, err)
	}
	return nil
}

// Compose renders msg as a complete email document.
func Compose(cfg Config, msg core.EmailMessage, at time.Time) ([]byte, error) {
	var header mail.Header
	header.SetDate(at)
	header.SetAddressList("From", []*mail.Address{{Name: cfg.FromName, Address: cfg.From}})
	header.SetAddressList("To", []*mail.Address{{Name: msg.ToName, Address: strings.TrimSpace(msg.To)}})
	header.SetSubject(msg.Subject)
	header.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := header.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("smtpmail: message id: %w", err)
	}
	if key := strings.TrimSpace(msg.TemplateKey); key != "" {
		header.Set("X-Marketplace-Template", key)
	}

	var buf bytes.Buffer
	body, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("smtpmail: create writer: %w", err)
	}
	if _, err := body.Write([]byte(renderBody(msg))); err != nil {
		return nil, fmt.Errorf("smtpmail: write body: %w", err)
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("smtpmail: close body: %w", err)
	}
	return buf.Bytes(), nil
}

func renderBody(msg core.EmailMessage) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(msg.Body))
	if url := strings.TrimSpace(msg.ActionURL); url != "" {
		if b.Len() > 0 {
			b.WriteString("\r\n\r\n")
		}
		b.WriteString(url)
	}
	b.WriteString("\r\n")
	return b.String()
}

var _ core.EmailSender = (*Sender)(nil)
