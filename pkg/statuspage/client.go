// Package statuspage fetches provider health from Statuspage-style status
// pages and normalizes it into a Status, with retry and error
// classification.
package statuspage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/statuscache/pkg/cache"
	"github.com/Sternrassler/statuscache/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusPath is appended to a provider's base URL.
const StatusPath = "/api/v2/status.json"

// maxBodyBytes bounds how much of a status response is read.
const maxBodyBytes = 1 << 20

// Indicator is the overall health reported by a status page.
type Indicator string

const (
	IndicatorNone        Indicator = "none"
	IndicatorMinor       Indicator = "minor"
	IndicatorMajor       Indicator = "major"
	IndicatorCritical    Indicator = "critical"
	IndicatorMaintenance Indicator = "maintenance"
)

// Status is the normalized health of one provider.
type Status struct {
	Provider    string    `json:"provider"`
	Name        string    `json:"name,omitempty"`
	Indicator   Indicator `json:"indicator"`
	Description string    `json:"description"`
	PageURL     string    `json:"page_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Operational reports whether the provider has no active incident.
func (s Status) Operational() bool {
	return s.Indicator == IndicatorNone
}

// statusDocument is the body of GET /api/v2/status.json.
type statusDocument struct {
	Page struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		URL       string    `json:"url"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"page"`
	Status struct {
		Indicator   string `json:"indicator"`
		Description string `json:"description"`
	} `json:"status"`
}

// Config holds the client configuration.
type Config struct {
	// UserAgent identifies this service to status pages.
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// Retry is the base retry policy, scaled per error class.
	Retry RetryConfig

	// RateLimits optionally shares Retry-After state between instances.
	RateLimits ratelimit.Store
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   10 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches provider status pages.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	limits     *ratelimit.Tracker
	now        func() time.Time
}

// New creates a new status page client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	logger := log.With().Str("component", "statuspage").Logger()
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger,
		limits:     ratelimit.NewTracker(cfg.RateLimits, logger),
		now:        time.Now,
	}, nil
}

// Fetch retrieves and normalizes the status of a provider. Server, rate
// limit and network errors are retried; client errors are returned at once.
// While a provider's announced Retry-After has not passed, Fetch fails with
// ErrRateLimited without sending a request.
func (c *Client) Fetch(ctx context.Context, p Provider) (Status, error) {
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(p.ID).Observe(time.Since(start).Seconds())
	}()

	endpoint := strings.TrimRight(p.URL, "/") + StatusPath
	logger := c.logger.With().Str("provider", p.ID).Logger()

	if wait, ok := c.limits.ShouldAllowRequest(ctx, p.ID); !ok {
		fetchRequestsTotal.WithLabelValues(p.ID, "rate_limited").Inc()
		return Status{}, &StatusError{
			Provider:   p.ID,
			StatusCode: http.StatusTooManyRequests,
			ErrorClass: ErrorClassRateLimit,
			Message:    fmt.Sprintf("retry in %s", wait.Round(time.Second)),
			Err:        ErrRateLimited,
		}
	}

	var doc statusDocument
	err := retryWithBackoff(ctx, c.config.Retry, logger, func() error {
		return c.fetchOnce(ctx, p.ID, endpoint, &doc)
	})
	if err != nil {
		logger.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Status fetch failed")
		return Status{}, err
	}
	c.limits.Reset(ctx, p.ID)

	status := Status{
		Provider:    p.ID,
		Name:        p.Name,
		Indicator:   normalizeIndicator(doc.Status.Indicator),
		Description: strings.TrimSpace(doc.Status.Description),
		PageURL:     doc.Page.URL,
		UpdatedAt:   doc.Page.UpdatedAt,
		FetchedAt:   c.now().UTC(),
	}
	if status.Name == "" {
		status.Name = doc.Page.Name
	}

	logger.Debug().
		Str("indicator", string(status.Indicator)).
		Dur("duration", time.Since(start)).
		Msg("Status fetched")

	return status, nil
}

// fetchOnce performs a single request attempt.
func (c *Client) fetchOnce(ctx context.Context, provider, endpoint string, doc *statusDocument) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &StatusError{Provider: provider, ErrorClass: ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		fetchRequestsTotal.WithLabelValues(provider, "network_error").Inc()
		c.logger.Warn().Err(err).Str("provider", provider).Msg("HTTP request failed")
		return fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(provider, strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()
		if class == ErrorClassRateLimit {
			c.limits.UpdateFromHeaders(ctx, provider, resp.Header)
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

		c.logger.Warn().
			Str("provider", provider).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Status page request error")

		return &StatusError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", endpoint, err)
	}

	*doc = statusDocument{}
	if err := json.Unmarshal(body, doc); err != nil {
		return &StatusError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    "decode status document",
			Err:        errors.Join(ErrInvalidPayload, err),
		}
	}
	if doc.Status.Indicator == "" {
		return &StatusError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    "missing status indicator",
			Err:        ErrInvalidPayload,
		}
	}
	return nil
}

func normalizeIndicator(s string) Indicator {
	return Indicator(strings.ToLower(strings.TrimSpace(s)))
}

// Fetcher adapts the client to the cache warmup and revalidation API.
// Subjects are resolved against providers by ID.
func (c *Client) Fetcher(providers []Provider) cache.Fetcher[Status] {
	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byID[p.ID] = p
	}
	return func(ctx context.Context, s cache.Subject) (Status, error) {
		p, ok := byID[s.ID]
		if !ok {
			return Status{}, fmt.Errorf("%w: %s", ErrUnknownProvider, s.ID)
		}
		return c.Fetch(ctx, p)
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
