package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/forum-client/pkg/transport"
)

// challengeScanBytes bounds how much of an HTML body is searched for markers.
const challengeScanBytes = 2048

var challengeMarkers = [][]byte{
	[]byte("cloudflare"),
	[]byte("challenge"),
	[]byte("just a moment"),
	[]byte("cf-chl"),
	[]byte("checking your browser"),
}

// IsChallenge reports whether resp is an anti-bot interstitial rather than a
// forum reply.
func IsChallenge(resp *transport.Response) bool {
	if resp == nil {
		return false
	}
	if strings.EqualFold(resp.Header.Get("cf-mitigated"), "challenge") {
		return true
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
	default:
		return false
	}
	if resp.MediaType() != "text/html" {
		return false
	}
	head := resp.Body
	if len(head) > challengeScanBytes {
		head = head[:challengeScanBytes]
	}
	head = bytes.ToLower(head)
	for _, m := range challengeMarkers {
		if bytes.Contains(head, m) {
			return true
		}
	}
	return false
}

// Clearance is what a solved challenge yields: cookies and headers that must
// accompany every later request.
type Clearance struct {
	Cookies []*http.Cookie
	Header  http.Header
}

// Apply returns a copy of a carrying the clearance.
func (c *Clearance) Apply(a *transport.Attempt) *transport.Attempt {
	if c == nil {
		return a
	}
	extra := c.Header.Clone()
	if extra == nil {
		extra = http.Header{}
	}
	if cookie := transport.CookieHeader(c.Cookies); cookie != "" {
		extra.Set("Cookie", cookie)
	}
	return a.WithHeader(extra)
}

// ChallengeSolver obtains a clearance for the forum at baseURL.
type ChallengeSolver interface {
	Solve(ctx context.Context, t transport.Transport, baseURL string) (*Clearance, error)
}

// ChallengeSolverFunc adapts a function to ChallengeSolver.
type ChallengeSolverFunc func(ctx context.Context, t transport.Transport, baseURL string) (*Clearance, error)

// Solve implements ChallengeSolver.
func (f ChallengeSolverFunc) Solve(ctx context.Context, t transport.Transport, baseURL string) (*Clearance, error) {
	return f(ctx, t, baseURL)
}

// browserUserAgent is sent by WarmupSolver when none is configured.
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// WarmupSolver visits a few HTML pages with browser headers and keeps any
// cookies the edge hands out.
type WarmupSolver struct {
	UserAgent string
	Paths     []string
}

// Solve implements ChallengeSolver.
func (w WarmupSolver) Solve(ctx context.Context, t transport.Transport, baseURL string) (*Clearance, error) {
	paths := w.Paths
	if len(paths) == 0 {
		paths = []string{"/", "/about"}
	}
	ua := w.UserAgent
	if ua == "" {
		ua = browserUserAgent
	}

	header := http.Header{}
	header.Set("User-Agent", ua)
	header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	header.Set("Accept-Language", "en-US,en;q=0.9")

	jar := map[string]*http.Cookie{}
	var order []string
	cleared := false
	var lastErr error

	for _, p := range paths {
		a := &transport.Attempt{
			Method: http.MethodGet,
			URL:    transport.ResolveURL(baseURL, p),
			Path:   p,
			Header: header.Clone(),
		}
		if len(order) > 0 {
			a.Header.Set("Cookie", transport.CookieHeader(cookieList(jar, order)))
		}
		resp, err := t.Send(ctx, a)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		for _, c := range resp.Cookies() {
			if _, seen := jar[c.Name]; !seen {
				order = append(order, c.Name)
			}
			jar[c.Name] = c
		}
		if resp.IsSuccess() && !IsChallenge(resp) {
			cleared = true
		}
	}

	if !cleared && len(order) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("warm-up failed: %w", lastErr)
		}
		return nil, fmt.Errorf("warm-up did not clear the challenge")
	}

	return &Clearance{
		Cookies: cookieList(jar, order),
		Header:  http.Header{"User-Agent": {ua}},
	}, nil
}

func cookieList(jar map[string]*http.Cookie, order []string) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(order))
	for _, name := range order {
		out = append(out, jar[name])
	}
	return out
}
