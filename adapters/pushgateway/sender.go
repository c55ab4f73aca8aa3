package pushgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// RequestsPerSecond caps outbound requests; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// Sender posts push notifications as JSON to an HTTP push gateway.
type Sender struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

type Option func(*Sender)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

func NewSender(cfg Config, opts ...Option) (*Sender, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("pushgateway: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &Sender{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   &http.Client{Timeout: timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

type payload struct {
	UserID   string            `json:"user_id"`
	Tokens   []string          `json:"tokens"`
	Title    string            `json:"title"`
	Body     string            `json:"body,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// StatusError is returned when the gateway answers with a non 2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pushgateway: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the gateway may accept the same request later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func (s *Sender) SendPush(ctx context.Context, msg core.PushMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("pushgateway: sender is not configured")
	}
	tokens := make([]string, 0, len(msg.DeviceTokens))
	for _, token := range msg.DeviceTokens {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return fmt.Errorf("pushgateway: at least one device token is required")
	}

	body, err := json.Marshal(payload{
		UserID:   msg.UserID,
		Tokens:   tokens,
		Title:    msg.Title,
		Body:     msg.Body,
		Priority: string(msg.Priority),
		Data:     msg.Data,
	})
	if err != nil {
		return fmt.Errorf("pushgateway: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pushgateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("pushgateway: throttled: %w", err)
		}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushgateway: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

var _ core.PushSender = (*Sender)(nil)
