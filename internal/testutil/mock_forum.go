// Package testutil provides a Discourse-like mock server for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock forum endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockForum is a configurable mock Discourse server.
type MockForum struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount     int
	conditionalCount int
	pathCounts       map[string]int
	lastHeader       http.Header
}

// NewMockForum creates and starts a mock forum.
func NewMockForum() *MockForum {
	mock := &MockForum{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		http.Error(w, `{"errors":["The requested URL or resource could not be found."],"error_type":"not_found"}`, http.StatusNotFound)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockForum) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockForum) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockForum) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.pathCounts = make(map[string]int)
	m.lastHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockForum) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockForum) SetResponse(path string, resp MockResponse) {
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

// SetJSON answers path with a 200 JSON document.
func (m *MockForum) SetJSON(path string, v any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, v)
	})
}

// SetSequence answers path with each response in turn, repeating the last.
func (m *MockForum) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	i := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[i]
		if i < len(responses)-1 {
			i++
		}
		mu.Unlock()
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		w.Write([]byte(resp.Body))
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockForum) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockForum) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// ConditionalCount returns the number of conditional requests.
func (m *MockForum) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastHeader returns the headers of the most recent request.
func (m *MockForum) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader.Clone()
}

// EnableSession installs the Discourse login endpoints for one account.
// A non-empty totp makes the account require that second-factor code.
func (m *MockForum) EnableSession(username, password, totp string) {
	m.SetHandler("/session/csrf.json", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_forum_session", Value: "pre", Path: "/"})
		WriteJSON(w, http.StatusOK, map[string]string{"csrf": "mock-csrf"})
	})

	m.SetHandler("/session.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != "mock-csrf" {
			WriteJSON(w, http.StatusForbidden, map[string]any{"errors": []string{"BAD CSRF"}})
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["login"] != username || body["password"] != password {
			WriteJSON(w, http.StatusOK, map[string]string{"error": "Incorrect username, email or password"})
			return
		}
		if totp != "" {
			code, _ := body["second_factor_token"].(string)
			if code == "" {
				WriteJSON(w, http.StatusOK, map[string]any{
					"error": "Please enter your authentication code", "reason": "invalid_second_factor",
					"second_factor_required": true, "totp_enabled": true,
				})
				return
			}
			if code != totp {
				WriteJSON(w, http.StatusOK, map[string]any{"error": "Invalid authentication code", "reason": "invalid_second_factor"})
				return
			}
		}
		http.SetCookie(w, &http.Cookie{Name: "_t", Value: "token-" + username, Path: "/", HttpOnly: true})
		WriteJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 1, "username": username}})
	})

	m.SetHandler("/session/current.json", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Cookie"), "_t=token-"+username) && r.Header.Get("User-Api-Key") == "" {
			WriteJSON(w, http.StatusNotFound, map[string]any{"errors": []string{"not logged in"}})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"current_user": map[string]any{"id": 1, "username": username}})
	})
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ChallengeResponse is a Cloudflare-style interstitial.
func ChallengeResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `<!DOCTYPE html><html><head><title>Just a moment...</title></head><body><script src="/cdn-cgi/challenge-platform/h/b/orchestrate/chl_page/v1"></script></body></html>`,
		Headers: map[string]string{
			"Content-Type": "text/html; charset=UTF-8",
			"cf-mitigated": "challenge",
		},
	}
}

// RateLimitResponse is a Discourse 429 with Retry-After.
func RateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":["You've performed this action too many times."],"error_type":"rate_limit","extras":{"wait_seconds":1}}`,
		Headers: map[string]string{
			"Content-Type":                    "application/json; charset=utf-8",
			"Retry-After":                     retryAfter,
			"Discourse-Rate-Limit-Error-Code": "ip_10_secs_limit",
		},
	}
}

// ServerErrorResponse is a 502 from the edge.
func ServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadGateway,
		Body:       `<html><body>502 Bad Gateway</body></html>`,
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}

// JSONResponse is a 200 JSON response with an optional ETag.
func JSONResponse(body, etag string) MockResponse {
	h := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	if etag != "" {
		h["ETag"] = etag
	}
	return MockResponse{StatusCode: http.StatusOK, Body: body, Headers: h}
}

// NewConditionalHandler answers 304 when If-None-Match equals etag.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "max-age=60")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
