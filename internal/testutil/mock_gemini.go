// Package testutil provides testing utilities for the Gemini client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockGeminiResponse defines the behavior for a mock generateContent response.
type MockGeminiResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGemini is a configurable mock Gemini API server for testing.
type MockGemini struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount int
	lastBody     map[string]any
	lastQuery    string
	lastPath     string
}

// NewMockGemini creates a new mock Gemini server.
func NewMockGemini() *MockGemini {
	mock := &MockGemini{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		mock.mu.Lock()
		mock.requestCount++
		mock.lastBody = body
		mock.lastQuery = r.URL.RawQuery
		mock.lastPath = r.URL.Path
		mock.mu.Unlock()

		// Check for custom handler
		mock.mu.RLock()
		handler, exists := mock.handlers[modelFromPath(r.URL.Path)]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		// Default handler
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGemini) URL() string {
	return m.server.URL
}

// Client returns an HTTP client wired to the mock server.
func (m *MockGemini) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockGemini) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGemini) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastBody = nil
	m.lastQuery = ""
	m.lastPath = ""
}

// SetHandler sets a custom handler for a model, e.g. "gemini-2.0-flash".
func (m *MockGemini) SetHandler(model string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[model] = handler
}

// SetResponse configures a simple response for a model.
func (m *MockGemini) SetResponse(model string, resp MockGeminiResponse) {
	m.SetHandler(model, func(w http.ResponseWriter, r *http.Request) {
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

// GetRequestCount returns the number of requests made to the server.
func (m *MockGemini) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastBody returns the decoded JSON body of the most recent request.
func (m *MockGemini) LastBody() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBody
}

// LastQuery returns the raw query string of the most recent request.
func (m *MockGemini) LastQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// LastPath returns the URL path of the most recent request.
func (m *MockGemini) LastPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPath
}

// defaultHandler answers every generateContent call with a single text
// candidate.
func (m *MockGemini) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":generateContent") {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"Not found","status":"NOT_FOUND"}}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(TextPayload("ok")))
}

// modelFromPath extracts the model from /{version}/models/{model}:generateContent.
func modelFromPath(path string) string {
	_, rest, found := strings.Cut(path, "/models/")
	if !found {
		return ""
	}
	model, _, _ := strings.Cut(rest, ":")
	return model
}

// TextPayload renders a successful payload whose first candidate holds
// one text part per argument.
func TextPayload(texts ...string) string {
	parts := make([]map[string]string, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, map[string]string{"text": t})
	}
	payload := map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"parts": parts, "role": "model"},
				"finishReason": "STOP",
				"safetyRatings": []any{
					map[string]any{"category": "HARM_CATEGORY_HARASSMENT", "probability": "NEGLIGIBLE", "probabilityScore": 0.05},
				},
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     3,
			"candidatesTokenCount": len(texts),
			"totalTokenCount":      3 + len(texts),
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

// ErrorPayload renders an API error body.
func ErrorPayload(code int, message string) string {
	return fmt.Sprintf(`{"error":{"code":%d,"message":%q,"status":"ERROR"}}`, code, message)
}

// NewTextResponse creates a standard 200 OK response.
func NewTextResponse(texts ...string) MockGeminiResponse {
	return MockGeminiResponse{
		StatusCode: http.StatusOK,
		Body:       TextPayload(texts...),
		Headers:    map[string]string{"Content-Type": "application/json; charset=UTF-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockGeminiResponse {
	return MockGeminiResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       ErrorPayload(429, "Resource has been exhausted (e.g. check quota)."),
		Headers:    map[string]string{"Content-Type": "application/json; charset=UTF-8"},
	}
}

// NewServiceUnavailableResponse creates a 503 Service Unavailable response.
func NewServiceUnavailableResponse() MockGeminiResponse {
	return MockGeminiResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       ErrorPayload(503, "The model is overloaded. Please try again later."),
		Headers:    map[string]string{"Content-Type": "application/json; charset=UTF-8"},
	}
}

// NewEmptyResponse creates a 200 OK response without a body.
func NewEmptyResponse() MockGeminiResponse {
	return MockGeminiResponse{StatusCode: http.StatusOK}
}
