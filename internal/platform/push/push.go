// Package push sends Web Push notifications signed with the clinic's VAPID
// key pair.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"
)

// MaxPayloadBytes keeps the encrypted record under the 4 KB push limit.
const MaxPayloadBytes = 3800

var (
	// ErrSubscriptionGone means the push service answered 404 or 410 and the
	// subscription must be deleted.
	ErrSubscriptionGone = errors.New("push: subscription gone")
	ErrPayloadTooLarge  = errors.New("push: payload too large")
	ErrNotConfigured    = errors.New("push: VAPID keys not configured")
)

// StatusError is a non-2xx answer that is worth retrying.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push: endpoint returned %d: %s", e.Code, e.Body)
}

type Subscription struct {
	ID       string
	Endpoint string
	P256dh   string
	Auth     string
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Icon               string `json:"icon,omitempty"`
	Badge              string `json:"badge,omitempty"`
	URL                string `json:"url,omitempty"`
	Tag                string `json:"tag,omitempty"`
	RequireInteraction bool   `json:"requireInteraction"`
}

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub Subscription, p Payload) error
}

type Config struct {
	PublicKey  string
	PrivateKey string
	// Subject is the contact address advertised to push services.
	Subject string
	TTL     int
	Timeout time.Duration
	Icon    string
	Badge   string
	URL     string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Decorate fills icon, badge and url from configuration when the caller
// left them empty.
func (c *Client) Decorate(p Payload) Payload {
	if p.Icon == "" {
		p.Icon = c.cfg.Icon
	}
	if p.Badge == "" {
		p.Badge = c.cfg.Badge
	}
	if p.URL == "" {
		p.URL = c.cfg.URL
	}
	return p
}

func (c *Client) Send(ctx context.Context, sub Subscription, p Payload) error {
	if c.cfg.PrivateKey == "" || c.cfg.PublicKey == "" {
		return ErrNotConfigured
	}
	body, err := Encode(c.Decorate(p))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      c.httpClient,
		Subscriber:      c.cfg.Subject,
		VAPIDPublicKey:  c.cfg.PublicKey,
		VAPIDPrivateKey: c.cfg.PrivateKey,
		TTL:             c.cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}
}

// Encode marshals p, trimming the body until the document fits.
func Encode(p Payload) ([]byte, error) {
	for {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("push: marshal payload: %w", err)
		}
		if len(b) <= MaxPayloadBytes {
			return b, nil
		}
		if p.Body == "" {
			return nil, ErrPayloadTooLarge
		}
		p.Body = truncate(p.Body, len(p.Body)-(len(b)-MaxPayloadBytes)-3) + "..."
		if len(p.Body) <= 3 {
			p.Body = ""
		}
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Result summarises a fan-out to every device of one patient.
type Result struct {
	Delivered int
	// Gone lists subscriptions the push service no longer knows.
	Gone []Subscription
	// Errs holds transient per-device failures.
	Errs []error
}

func (r Result) OK() bool { return r.Delivered > 0 }

// Err folds the transient failures into one error, or nil.
func (r Result) Err() error {
	if len(r.Errs) == 0 && len(r.Gone) > 0 && r.Delivered == 0 {
		return ErrSubscriptionGone
	}
	return errors.Join(r.Errs...)
}

// Broadcast sends p to every subscription concurrently. Each device gets its
// own deadline and a failure on one never cancels the others.
func Broadcast(ctx context.Context, s Sender, subs []Subscription, p Payload) Result {
	outcomes := make([]error, len(subs))
	var g errgroup.Group
	g.SetLimit(4)
	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			outcomes[i] = s.Send(ctx, sub, p)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i, err := range outcomes {
		switch {
		case err == nil:
			res.Delivered++
		case errors.Is(err, ErrSubscriptionGone):
			res.Gone = append(res.Gone, subs[i])
		default:
			res.Errs = append(res.Errs, err)
		}
	}
	return res
}

// GenerateKeys returns a fresh VAPID key pair (private, public).
func GenerateKeys() (string, string, error) {
	return webpush.GenerateVAPIDKeys()
}
