package emailadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"

	"github.com/sony/gobreaker"
)

const (
	providerName       = "email-provider"
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 4 << 10
)

// BreakerSettings tunes the circuit breaker in front of the provider.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Breaker    BreakerSettings
	Logger     *slog.Logger
}

// Client sends transactional email through an HTTP JSON provider API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("email provider base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("email provider api key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	settings := cfg.Breaker
	if settings.ConsecutiveFailures == 0 {
		settings = DefaultBreakerSettings()
	}
	logger := application.ResolveLogger(cfg.Logger)

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        providerName,
			MaxRequests: settings.HalfOpenRequests,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
			},
			IsSuccessful: countsAsHealthy,
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("email provider circuit breaker state changed",
					"event", "email_breaker_state_changed",
					"module", application.ModuleName,
					"layer", "adapter",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
		logger: logger,
	}, nil
}

// Send posts one message. Non-2xx answers come back as *ports.ProviderRejection;
// an open breaker fails fast without contacting the provider.
func (c *Client) Send(ctx context.Context, message ports.EmailMessage) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, message)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s unavailable: %w", providerName, err)
	}
	return err
}

func (c *Client) post(ctx context.Context, message ports.EmailMessage) error {
	body, err := json.Marshal(sendRequest{
		From:    message.From,
		To:      []string{message.To},
		Subject: message.Subject,
		Text:    message.Text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(message.IdempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &ports.ProviderRejection{
		Provider:   providerName,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
}

// countsAsHealthy keeps client-side rejections (bad address, quota) from
// tripping the breaker; only transport errors and 5xx do.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	var rejection *ports.ProviderRejection
	if errors.As(err, &rejection) {
		return rejection.StatusCode < http.StatusInternalServerError
	}
	return errors.Is(err, context.Canceled)
}
