// Package testutil provides testing utilities for statuscache.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// StatusPath is the Statuspage endpoint served by MockStatusPage.
const StatusPath = "/api/v2/status.json"

// MockResponse defines the behavior for a mock status page response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockStatusPage is a configurable mock status page server for testing.
// Responses queued with Enqueue are served first, in order; afterwards the
// configured handler (or the default operational document) answers.
type MockStatusPage struct {
	server  *httptest.Server
	mu      sync.Mutex
	handler func(w http.ResponseWriter, r *http.Request)
	queue   []MockResponse

	requestCount      int
	lastRequestHeader http.Header
}

// NewMockStatusPage creates a new mock status page server.
func NewMockStatusPage() *MockStatusPage {
	mock := &MockStatusPage{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequestHeader = r.Header.Clone()

		var queued *MockResponse
		if len(mock.queue) > 0 {
			queued = &mock.queue[0]
			mock.queue = mock.queue[1:]
		}
		handler := mock.handler
		mock.mu.Unlock()

		if r.URL.Path != StatusPath {
			http.NotFound(w, r)
			return
		}

		switch {
		case queued != nil:
			writeResponse(w, *queued)
		case handler != nil:
			handler(w, r)
		default:
			writeResponse(w, NewStatusResponse("none", "All Systems Operational"))
		}
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockStatusPage) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStatusPage) Close() {
	m.server.Close()
}

// Reset clears tracking counters and queued responses.
func (m *MockStatusPage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastRequestHeader = nil
	m.queue = nil
}

// SetHandler replaces the handler used once the queue is empty.
func (m *MockStatusPage) SetHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// SetResponse answers every request with resp once the queue is empty.
func (m *MockStatusPage) SetResponse(resp MockResponse) {
	m.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// Enqueue adds one-shot responses served before the handler.
func (m *MockStatusPage) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockStatusPage) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockStatusPage) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// StatusDocument renders a Statuspage status.json body.
func StatusDocument(indicator, description string) string {
	return fmt.Sprintf(`{
  "page": {
    "id": "mock",
    "name": "Mock Provider",
    "url": "https://status.example.com",
    "time_zone": "Etc/UTC",
    "updated_at": "2025-01-01T12:00:00.000Z"
  },
  "status": {
    "indicator": %q,
    "description": %q
  }
}`, indicator, description)
}

// NewStatusResponse creates a 200 OK status document response.
func NewStatusResponse(indicator, description string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       StatusDocument(indicator, description),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"Retry-After":  "1",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
