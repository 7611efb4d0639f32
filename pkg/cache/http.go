package cache

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/forum-client/pkg/transport"
)

// DefaultTTL is used when a response carries no freshness information.
const DefaultTTL = 2 * time.Minute

// ResponseToEntry converts a forum response to a CacheEntry.
// A zero defaultTTL means DefaultTTL.
func ResponseToEntry(resp *transport.Response, defaultTTL time.Duration) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	now := time.Now()
	entry := &CacheEntry{
		Data:       append([]byte(nil), resp.Body...),
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   now,
		Expires:    expiresAt(resp.Header, now, defaultTTL),
	}

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// Storable reports whether the response may be cached at all.
func Storable(resp *transport.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK || !resp.IsJSON() {
		return false
	}
	cc := strings.ToLower(resp.Header.Get("Cache-Control"))
	return !strings.Contains(cc, "no-store") && !strings.Contains(cc, "private")
}

// expiresAt derives the expiry from Cache-Control max-age, then Expires.
func expiresAt(headers http.Header, now time.Time, defaultTTL time.Duration) time.Time {
	for _, directive := range strings.Split(headers.Get("Cache-Control"), ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return now.Add(time.Duration(secs) * time.Second)
			}
		}
	}

	if expiresStr := headers.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil {
			if expires.Before(now) {
				return now
			}
			return expires
		}
	}

	return now.Add(defaultTTL)
}

// ShouldMakeConditionalRequest reports whether the entry supports a
// conditional request.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// ConditionalHeaders returns If-None-Match or If-Modified-Since for entry.
func ConditionalHeaders(entry *CacheEntry) http.Header {
	h := http.Header{}
	if entry == nil {
		return h
	}
	if entry.ETag != "" {
		h.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		h.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
	return h
}

// EntryToResponse rebuilds a response from a cache entry.
func EntryToResponse(entry *CacheEntry, url string) *transport.Response {
	return &transport.Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Headers.Clone(),
		Body:       append([]byte(nil), entry.Data...),
		URL:        url,
	}
}
