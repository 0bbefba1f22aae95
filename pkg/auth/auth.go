// Package auth exchanges a Strava refresh token for a short-lived access token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// DefaultTokenURL is Strava's OAuth token endpoint.
const DefaultTokenURL = "https://www.strava.com/oauth/token"

// ErrMissingCredentials is returned when client id, secret or refresh token is unset.
var ErrMissingCredentials = errors.New("missing Strava API credentials")

// Error is a non-2xx answer of the token endpoint.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("strava token exchange failed (status %d): %s", e.StatusCode, e.Body)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Credentials identify the API application and the athlete grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
}

// Validate checks that every credential is present.
func (c Credentials) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "STRAVA_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "STRAVA_CLIENT_SECRET")
	}
	if c.RefreshToken == "" {
		missing = append(missing, "STRAVA_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingCredentials, missing)
	}
	return nil
}

// TokenSource returns valid access tokens, refreshing them when they expire.
type TokenSource struct {
	creds      Credentials
	httpClient *http.Client
	logger     zerolog.Logger

	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewTokenSource creates a token source. Credentials are validated lazily
// on the first Token call.
func NewTokenSource(creds Credentials) *TokenSource {
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}
	return &TokenSource{
		creds:  creds,
		logger: log.With().Str("component", "auth").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *TokenSource) SetHTTPClient(client *http.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.httpClient = client
	t.src = nil
}

// Token returns an access token, exchanging the refresh token when no valid
// token is held.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	if err := t.creds.Validate(); err != nil {
		return "", err
	}

	t.mu.Lock()
	if t.src == nil {
		t.src = t.newSource(ctx)
	}
	src := t.src
	t.mu.Unlock()

	t.logger.Debug().Str("token_url", t.creds.TokenURL).Msg("Requesting access token")

	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return "", &Error{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
				Err:        err,
			}
		}
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	t.logger.Info().Time("expires", tok.Expiry).Msg("Obtained access token")
	return tok.AccessToken, nil
}

func (t *TokenSource) newSource(ctx context.Context) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     t.creds.ClientID,
		ClientSecret: t.creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  t.creds.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	// the token source outlives the first request, so it must not capture a
	// request-scoped context
	base := context.WithoutCancel(ctx)
	if t.httpClient != nil {
		base = context.WithValue(base, oauth2.HTTPClient, t.httpClient)
	}
	return cfg.TokenSource(base, &oauth2.Token{RefreshToken: t.creds.RefreshToken})
}
