package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://forum.example.com", "/t/1.json", "https://forum.example.com/t/1.json"},
		{"https://forum.example.com/", "t/1.json", "https://forum.example.com/t/1.json"},
		{"https://forum.example.com//", "//t/1.json", "https://forum.example.com/t/1.json"},
		{"https://forum.example.com", "https://cdn.example.com/x", "https://cdn.example.com/x"},
	}
	for _, tt := range tests {
		if got := ResolveURL(tt.base, tt.path); got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestAttempt_WithHeaderMergesCookies(t *testing.T) {
	a := &Attempt{Header: http.Header{"Cookie": {"a=1"}}}
	b := a.WithHeader(http.Header{"Cookie": {"b=2"}, "X-Csrf-Token": {"tok"}})

	if got := b.Header.Get("Cookie"); got != "a=1; b=2" {
		t.Errorf("Cookie = %q, want %q", got, "a=1; b=2")
	}
	if got := a.Header.Get("Cookie"); got != "a=1" {
		t.Errorf("original mutated: Cookie = %q", got)
	}
	if got := b.Header.Get("X-Csrf-Token"); got != "tok" {
		t.Errorf("X-Csrf-Token = %q, want tok", got)
	}
}

func TestAttempt_FullURL(t *testing.T) {
	a := &Attempt{URL: "https://f.example/search.json", Query: url.Values{"q": {"chase sapphire"}}}
	if got := a.FullURL(); got != "https://f.example/search.json?q=chase+sapphire" {
		t.Errorf("FullURL() = %q", got)
	}
	n := a.WithNumber(3)
	if n.Number != 3 || a.Number != 0 {
		t.Errorf("WithNumber: got %d / original %d", n.Number, a.Number)
	}
}

func TestResponse_IsJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"json content type", "application/json; charset=utf-8", `{}`, true},
		{"html", "text/html; charset=utf-8", `<html></html>`, false},
		{"sniffed object", "", `  {"a":1}`, true},
		{"sniffed html", "", `<html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Response{Header: http.Header{}, Body: []byte(tt.body)}
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			if got := r.IsJSON(); got != tt.want {
				t.Errorf("IsJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponse_Cookies(t *testing.T) {
	r := &Response{Header: http.Header{}}
	r.Header.Add("Set-Cookie", "_t=abc; Path=/; HttpOnly")
	r.Header.Add("Set-Cookie", "_forum_session=xyz; Path=/")

	cookies := r.Cookies()
	if len(cookies) != 2 {
		t.Fatalf("len(Cookies()) = %d, want 2", len(cookies))
	}
	if got := CookieHeader(cookies); got != "_t=abc; _forum_session=xyz" {
		t.Errorf("CookieHeader = %q", got)
	}
}

func TestPostJSONAndForm(t *testing.T) {
	req, err := PostJSON("/posts.json", map[string]any{"raw": "hi"})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if req.Method != http.MethodPost || req.ContentType != "application/json" || string(req.Body) != `{"raw":"hi"}` {
		t.Errorf("PostJSON = %+v", req)
	}

	form := PostForm("/bookmarks.json", url.Values{"bookmarkable_id": {"7"}})
	if string(form.Body) != "bookmarkable_id=7" {
		t.Errorf("form body = %q", form.Body)
	}
}

func TestHTTPTransport_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "forum-client-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("page = %q, want 2", r.URL.Query().Get("page"))
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"echo":"` + string(body) + `"}`))
	}))
	defer server.Close()

	tr := NewHTTPTransport(5*time.Second, "forum-client-test")
	resp, err := tr.Send(context.Background(), &Attempt{
		Method: http.MethodPost,
		URL:    server.URL + "/x",
		Query:  url.Values{"page": {"2"}},
		Header: http.Header{},
		Body:   []byte("hello"),
		Number: 1,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	var out struct{ Echo string }
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Echo != "hello" {
		t.Errorf("Echo = %q, want hello", out.Echo)
	}
}

func TestHTTPTransport_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"posts":[1,2,3]}`))
	}))
	defer server.Close()

	tests := []struct {
		name    string
		limit   int64
		wantErr bool
	}{
		{"exact fit", 17, false},
		{"one byte over", 16, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewHTTPTransport(time.Second, "")
			tr.SetMaxBodyBytes(tt.limit)
			resp, err := tr.Send(context.Background(), &Attempt{Method: http.MethodGet, URL: server.URL + "/t/1.json"})
			if tt.wantErr {
				if !errors.Is(err, ErrBodyTooLarge) {
					t.Errorf("Send() error = %v, want ErrBodyTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if len(resp.Body) != 17 {
				t.Errorf("body length = %d, want 17", len(resp.Body))
			}
		})
	}
}

func TestHTTPTransport_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	tr := NewHTTPTransport(time.Second, "")
	if _, err := tr.Send(context.Background(), &Attempt{Method: http.MethodGet, URL: addr}); err == nil {
		t.Error("expected network error for closed server")
	}
}
