// Package client provides the Strava API client with request pacing,
// rate-limit tracking, optional caching and a retrying per-club event fetcher.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/club-rides/pkg/cache"
	"github.com/Sternrassler/club-rides/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for Strava client operations.
var (
	stravaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_rides_strava_requests_total",
		Help: "Total Strava API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	stravaRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "club_rides_strava_request_duration_seconds",
		Help:    "Strava API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	stravaErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_rides_strava_errors_total",
		Help: "Total Strava API errors by class",
	}, []string{"class"})
)

// Endpoint labels. Club IDs are templated out to keep label cardinality low.
const (
	endpointClubs       = "/athlete/clubs"
	endpointClubEvents  = "/clubs/{id}/group_events"
	defaultClubsPerPage = 200
	maxClubPages        = 10
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Strava v3 API, without trailing slash.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout for a single HTTP request.
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests. Zero or less disables pacing.
	RequestsPerSecond float64
	Burst             int

	// Cache stores the club directory response. Optional.
	Cache         *cache.Manager
	ClubsCacheTTL time.Duration

	// RateLimiter gates requests on Strava's reported usage. Optional.
	RateLimiter *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://www.strava.com/api/v3",
		UserAgent:         "club-rides/1.0",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		ClubsCacheTTL:     5 * time.Minute,
	}
}

// Client is the Strava API client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	directory   *Directory
	config      Config
	logger      zerolog.Logger
}

// New creates a new Strava client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.ClubsCacheTTL <= 0 {
		cfg.ClubsCacheTTL = DefaultConfig().ClubsCacheTTL
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)

	logger := log.With().Str("component", "strava-client").Logger()

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     base,
		limiter:     rate.NewLimiter(limit, burst),
		rateLimiter: cfg.RateLimiter,
		cache:       cfg.Cache,
		directory:   NewDirectory(),
		config:      cfg,
		logger:      logger,
	}, nil
}

// Directory returns the club lookup table filled by ListClubs.
func (c *Client) Directory() *Directory {
	return c.directory
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// ListClubs returns the clubs the authenticated athlete is a member of and
// records their names in the directory. Errors are returned to the caller.
func (c *Client) ListClubs(ctx context.Context, token string) ([]Club, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	key := cache.CacheKey{Endpoint: endpointClubs, Subject: cache.SubjectFromToken(token)}
	if clubs, ok := c.cachedClubs(ctx, key); ok {
		c.directory.Add(clubs...)
		c.logger.Info().Int("clubs", len(clubs)).Msg("Using cached club list")
		return clubs, nil
	}

	c.logger.Info().Str("endpoint", c.baseURL.String()+endpointClubs).Msg("Requesting clubs")

	var clubs []Club
	for page := 1; page <= maxClubPages; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(defaultClubsPerPage))

		body, err := c.get(ctx, token, endpointClubs, endpointClubs, query)
		if err != nil {
			return nil, fmt.Errorf("list clubs: %w", err)
		}

		var pageClubs []Club
		if err := json.Unmarshal(body, &pageClubs); err != nil {
			return nil, fmt.Errorf("decode clubs: %w", err)
		}
		clubs = append(clubs, pageClubs...)
		if len(pageClubs) < defaultClubsPerPage {
			break
		}
	}

	c.directory.Add(clubs...)
	c.logger.Info().Int("clubs", len(clubs)).Msg("Received clubs from Strava API")

	if c.cache != nil {
		if data, err := json.Marshal(clubs); err == nil {
			if err := c.cache.Set(ctx, key, cache.NewEntry(data, http.StatusOK, c.config.ClubsCacheTTL)); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache club list")
			}
		}
	}

	return clubs, nil
}

// ForgetClubs drops the cached club list of the athlete behind token so the
// next ListClubs asks Strava again. Without a cache it does nothing.
func (c *Client) ForgetClubs(ctx context.Context, token string) error {
	if c.cache == nil || token == "" {
		return nil
	}
	n, err := c.cache.DeleteSubject(ctx, cache.SubjectFromToken(token))
	if err != nil {
		return fmt.Errorf("forget cached clubs: %w", err)
	}
	c.logger.Debug().Int("keys", n).Msg("Dropped cached club list")
	return nil
}

func (c *Client) cachedClubs(ctx context.Context, key cache.CacheKey) ([]Club, bool) {
	if c.cache == nil {
		return nil, false
	}
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Cache get error")
		}
		return nil, false
	}
	var clubs []Club
	if err := json.Unmarshal(entry.Data, &clubs); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding unreadable cached club list")
		return nil, false
	}
	return clubs, true
}

// GetClubEvents fetches the group events of one club in a single attempt.
// A 404 is reported as ErrNotFound wrapped in an *APIError.
func (c *Client) GetClubEvents(ctx context.Context, token string, clubID int64) ([]ClubEvent, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	path := fmt.Sprintf("/clubs/%d/group_events", clubID)
	c.logger.Debug().Int64("club_id", clubID).Str("endpoint", path).Msg("Requesting club events")

	body, err := c.get(ctx, token, path, endpointClubEvents, nil)
	if err != nil {
		return nil, err
	}

	var events []ClubEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("decode events for club %d: %w", clubID, err)
	}
	return events, nil
}

// get performs one authenticated GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, token, path, label string, query url.Values) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		stravaRequestDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().Str("endpoint", label).Msg("Request blocked by rate limiter")
			stravaRequestsTotal.WithLabelValues(label, "rate_limited").Inc()
			return nil, &APIError{
				ErrorClass: ErrorClassRateLimit,
				Endpoint:   label,
				Message:    "blocked locally",
				Err:        ErrRateLimited,
			}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for request slot: %w", err)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		stravaErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		stravaRequestsTotal.WithLabelValues(label, "network_error").Inc()
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Endpoint: label, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	stravaRequestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		stravaErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Endpoint: label, Message: "read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		stravaErrorsTotal.WithLabelValues(string(class)).Inc()

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Endpoint:   label,
			Message:    errorMessage(resp.Status, body),
		}
		switch class {
		case ErrorClassNotFound:
			apiErr.Err = ErrNotFound
		case ErrorClassRateLimit:
			apiErr.Err = ErrRateLimited
		}
		return nil, apiErr
	}

	return body, nil
}

// errorMessage extracts Strava's "message" field from an error body,
// falling back to the HTTP status line.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return status
}
