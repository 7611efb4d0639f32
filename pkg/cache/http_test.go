package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/forum-client/pkg/transport"
)

func jsonResponse(headers map[string]string) *transport.Response {
	h := http.Header{"Content-Type": {"application/json"}}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &transport.Response{StatusCode: http.StatusOK, Header: h, Body: []byte(`{"ok":true}`)}
}

func TestResponseToEntry_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "max-age wins over expires",
			headers: map[string]string{"Cache-Control": "public, max-age=30", "Expires": time.Now().Add(time.Hour).Format(http.TimeFormat)},
			wantMin: 29 * time.Second,
			wantMax: 31 * time.Second,
		},
		{
			name:    "expires header",
			headers: map[string]string{"Expires": time.Now().Add(10 * time.Minute).Format(http.TimeFormat)},
			wantMin: 9 * time.Minute,
			wantMax: 10*time.Minute + time.Second,
		},
		{
			name:    "past expires",
			headers: map[string]string{"Expires": time.Now().Add(-time.Hour).Format(http.TimeFormat)},
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "no freshness headers uses default",
			headers: nil,
			wantMin: 59 * time.Second,
			wantMax: 61 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := ResponseToEntry(jsonResponse(tt.headers), time.Minute)
			if err != nil {
				t.Fatalf("ResponseToEntry() error = %v", err)
			}
			if got := entry.TTL(); got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
			if string(entry.Data) != `{"ok":true}` {
				t.Errorf("Data = %s", entry.Data)
			}
		})
	}
}

func TestResponseToEntry_Nil(t *testing.T) {
	if _, err := ResponseToEntry(nil, 0); err == nil {
		t.Error("expected error for nil response")
	}
}

func TestStorable(t *testing.T) {
	html := &transport.Response{StatusCode: 200, Header: http.Header{"Content-Type": {"text/html"}}, Body: []byte("<html>")}
	notFound := jsonResponse(nil)
	notFound.StatusCode = http.StatusNotFound

	tests := []struct {
		name string
		resp *transport.Response
		want bool
	}{
		{"json 200", jsonResponse(nil), true},
		{"html", html, false},
		{"404", notFound, false},
		{"no-store", jsonResponse(map[string]string{"Cache-Control": "no-store"}), false},
		{"private", jsonResponse(map[string]string{"Cache-Control": "private, max-age=0"}), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Storable(tt.resp); got != tt.want {
				t.Errorf("Storable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConditionalHeaders(t *testing.T) {
	lastMod := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		entry     *CacheEntry
		wantCond  bool
		wantETag  string
		wantSince string
	}{
		{"nil entry", nil, false, "", ""},
		{"etag preferred", &CacheEntry{ETag: `W/"abc"`, LastModified: lastMod}, true, `W/"abc"`, ""},
		{"last-modified only", &CacheEntry{LastModified: lastMod}, true, "", lastMod.Format(http.TimeFormat)},
		{"neither", &CacheEntry{}, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldMakeConditionalRequest(tt.entry); got != tt.wantCond {
				t.Errorf("ShouldMakeConditionalRequest() = %v, want %v", got, tt.wantCond)
			}
			h := ConditionalHeaders(tt.entry)
			if got := h.Get("If-None-Match"); got != tt.wantETag {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantETag)
			}
			if got := h.Get("If-Modified-Since"); got != tt.wantSince {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantSince)
			}
		})
	}
}

func TestEntryToResponse(t *testing.T) {
	entry := &CacheEntry{
		Data:       []byte(`{"a":1}`),
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": {"application/json"}},
	}
	resp := EntryToResponse(entry, "https://forum.example/x.json")
	if resp.StatusCode != 200 || string(resp.Body) != `{"a":1}` || !resp.IsJSON() {
		t.Errorf("EntryToResponse() = %+v", resp)
	}
	resp.Body[0] = 'X'
	if entry.Data[0] != '{' {
		t.Error("response body aliases cache entry data")
	}
}
