package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/forum-client/pkg/transport"
)

func TestIsChallenge(t *testing.T) {
	tests := []struct {
		name   string
		status int
		ctype  string
		header map[string]string
		body   string
		want   bool
	}{
		{"json reply", 200, "application/json", nil, `{"topic_list":{}}`, false},
		{"html challenge on 200", 200, "text/html; charset=UTF-8", nil, "<title>Just a moment...</title>", true},
		{"html challenge on 403", 403, "text/html", nil, "<div id=cf-chl-widget>", true},
		{"html challenge on 503", 503, "text/html", nil, "Checking your browser before accessing", true},
		{"cf-mitigated header", 403, "text/plain", map[string]string{"cf-mitigated": "challenge"}, "", true},
		{"plain html page", 200, "text/html", nil, "<html><body>Welcome</body></html>", false},
		{"html 404", 404, "text/html", nil, "cloudflare", false},
		{"marker beyond scan window", 200, "text/html", nil, strings.Repeat("x", 3000) + "challenge", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{"Content-Type": {tt.ctype}}
			for k, v := range tt.header {
				h.Set(k, v)
			}
			resp := &transport.Response{StatusCode: tt.status, Header: h, Body: []byte(tt.body)}
			if got := IsChallenge(resp); got != tt.want {
				t.Errorf("IsChallenge() = %v, want %v", got, tt.want)
			}
		})
	}

	if IsChallenge(nil) {
		t.Error("IsChallenge(nil) = true")
	}
}

func TestClearance_Apply(t *testing.T) {
	c := &Clearance{
		Cookies: []*http.Cookie{{Name: "cf_clearance", Value: "abc"}},
		Header:  http.Header{"User-Agent": {"Browser/1.0"}},
	}
	a := &transport.Attempt{Header: http.Header{"Cookie": {"_t=1"}}}

	got := c.Apply(a)
	if cookie := got.Header.Get("Cookie"); cookie != "_t=1; cf_clearance=abc" {
		t.Errorf("Cookie = %q", cookie)
	}
	if ua := got.Header.Get("User-Agent"); ua != "Browser/1.0" {
		t.Errorf("User-Agent = %q", ua)
	}
	if a.Header.Get("Cookie") != "_t=1" {
		t.Error("Apply mutated the original attempt")
	}

	var none *Clearance
	if none.Apply(a) != a {
		t.Error("nil clearance should return the attempt unchanged")
	}
}

func TestWarmupSolver(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla/") {
			t.Errorf("User-Agent = %q, want a browser agent", r.Header.Get("User-Agent"))
		}
		switch r.URL.Path {
		case "/":
			http.SetCookie(w, &http.Cookie{Name: "__cf_bm", Value: "bm1"})
		case "/about":
			if !strings.Contains(r.Header.Get("Cookie"), "__cf_bm=bm1") {
				t.Errorf("second visit Cookie = %q, want first visit cookies", r.Header.Get("Cookie"))
			}
			http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "ok"})
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>forum</html>"))
	}))
	defer server.Close()

	tr := transport.NewHTTPTransport(5*time.Second, "")
	clr, err := WarmupSolver{}.Solve(context.Background(), tr, server.URL)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if strings.Join(paths, ",") != "/,/about" {
		t.Errorf("visited %v, want [/ /about]", paths)
	}
	if got := transport.CookieHeader(clr.Cookies); got != "__cf_bm=bm1; cf_clearance=ok" {
		t.Errorf("clearance cookies = %q", got)
	}
}

func TestWarmupSolver_StillChallenged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<title>Just a moment...</title>"))
	}))
	defer server.Close()

	tr := transport.NewHTTPTransport(5*time.Second, "")
	if _, err := (WarmupSolver{}).Solve(context.Background(), tr, server.URL); err == nil {
		t.Error("Solve() succeeded against a permanent challenge")
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"/t/123.json":           "/t/:id.json",
		"/t/topic/123.json":     "/t/topic/:id.json",
		"/t/55/notifications":   "/t/:id/notifications",
		"/latest.json":          "/latest.json",
		"/u/alice/summary.json": "/u/alice/summary.json",
		"/c/12/34.json":         "/c/:id/:id.json",
	}
	for in, want := range tests {
		if got := endpointLabel(in); got != want {
			t.Errorf("endpointLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
