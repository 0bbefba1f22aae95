// Package testutil provides testing utilities for the Strava client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock Strava endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockStrava is a configurable mock of the Strava v3 API and OAuth endpoint.
type MockStrava struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount      int
	pathCounts        map[string]int
	lastAuthorization string
}

// NewMockStrava creates a new mock Strava server.
func NewMockStrava() *MockStrava {
	mock := &MockStrava{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastAuthorization = r.Header.Get("Authorization")
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Record Not Found","errors":[{"resource":"Club","field":"id","code":"not found"}]}`))
	}))

	return mock
}

// URL returns the mock server URL, usable as the API base URL.
func (m *MockStrava) URL() string {
	return m.server.URL
}

// TokenURL returns the mock OAuth token endpoint.
func (m *MockStrava) TokenURL() string {
	return m.server.URL + "/oauth/token"
}

// Close shuts down the mock server.
func (m *MockStrava) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockStrava) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastAuthorization = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockStrava) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockStrava) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetClubs configures GET /athlete/clubs to return clubs, encoded as JSON.
func (m *MockStrava) SetClubs(clubs any) {
	m.SetResponse("/athlete/clubs", NewHealthyResponse(mustJSON(clubs)))
}

// SetClubEvents configures GET /clubs/{id}/group_events.
func (m *MockStrava) SetClubEvents(clubID int64, resp MockResponse) {
	m.SetResponse(ClubEventsPath(clubID), resp)
}

// SetToken configures the OAuth endpoint to issue accessToken.
func (m *MockStrava) SetToken(accessToken string) {
	m.SetHandler("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Bad Request"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(mustJSON(map[string]any{
			"token_type":    "Bearer",
			"access_token":  accessToken,
			"refresh_token": r.PostForm.Get("refresh_token"),
			"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
			"expires_in":    21600,
		})))
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockStrava) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockStrava) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastAuthorization returns the Authorization header of the last request.
func (m *MockStrava) LastAuthorization() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAuthorization
}

// ClubEventsPath returns the events path for a club.
func ClubEventsPath(clubID int64) string {
	return fmt.Sprintf("/clubs/%d/group_events", clubID)
}

// NewHealthyResponse creates a standard 200 OK response with Strava rate-limit headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-RateLimit-Limit": "200,2000",
			"X-RateLimit-Usage": "1,10",
			"Content-Type":      "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 response as Strava sends for unknown clubs.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"message":"Record Not Found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message":"Rate Limit Exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Limit": "200,2000",
			"X-RateLimit-Usage": "200,300",
			"Content-Type":      "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Internal Server Error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
