// Package mailer delivers notification email over authenticated SMTP with
// mandatory STARTTLS. One connection is opened per message; retries belong
// to the caller.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/wneessen/go-mail"
)

var (
	ErrNotConfigured = errors.New("mailer: SMTP not configured")
	ErrNoRecipient   = errors.New("mailer: recipient address is empty")
)

type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	// Text is the plain alternative. Derived from HTML when empty.
	Text string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

type SMTP struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTP {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTP{cfg: cfg}
}

func (s *SMTP) Send(ctx context.Context, m Message) error {
	if s.cfg.Host == "" || s.cfg.FromAddress == "" {
		return ErrNotConfigured
	}
	msg, err := Build(s.cfg, m)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("mailer: client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", m.To, err)
	}
	return nil
}

func (s *SMTP) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// Build assembles a UTF-8 multipart/alternative message.
func Build(cfg Config, m Message) (*mail.Msg, error) {
	if strings.TrimSpace(m.To) == "" {
		return nil, ErrNoRecipient
	}
	msg := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8))
	if err := msg.FromFormat(cfg.FromName, cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("mailer: from: %w", err)
	}
	var err error
	if m.ToName != "" {
		err = msg.AddToFormat(m.ToName, m.To)
	} else {
		err = msg.To(m.To)
	}
	if err != nil {
		return nil, fmt.Errorf("mailer: to: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetMessageID()
	msg.SetDate()

	text := m.Text
	if text == "" {
		text = PlainText(m.HTML)
	}
	msg.SetBodyString(mail.TypeTextPlain, text)
	if m.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	}
	return msg, nil
}

var strict = bluemonday.StrictPolicy()

// PlainText strips markup from an HTML fragment, turning block breaks into
// newlines.
func PlainText(s string) string {
	r := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n", "</li>", "\n")
	out := html.UnescapeString(strict.Sanitize(r.Replace(s)))
	lines := strings.Split(out, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
