package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"posync/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// NetworkError covers both transport failures and non-2xx responses.
// Callers interpret retryability; this layer does not distinguish a
// permanent 4xx from a transient 5xx or timeout.
type NetworkError struct {
	Endpoint   string
	Method     string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a gateway failure.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// Gateway performs the actual HTTP calls against the remote backend.
type Gateway struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func New(cfg config.RemoteConfig, logger *zerolog.Logger) *Gateway {
	limit := rate.Inf
	burst := 0
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
		burst = cfg.RateLimitBurst
		if burst <= 0 {
			burst = 5
		}
	}

	return &Gateway{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Send issues one HTTP request. Non-2xx statuses and transport errors
// both surface as *NetworkError.
func (g *Gateway) Send(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Method: method, Err: err}
	}

	url := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		url = g.baseURL + endpoint
	}

	var body io.Reader
	if method != http.MethodGet && len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Method: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		return nil, &NetworkError{Endpoint: endpoint, Method: method, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Method: method, Err: err}
	}

	if g.logger != nil {
		g.logger.Debug().Str("method", method).Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("remote call")
	}

	if len(data) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}
