// Package transport holds the request/response records exchanged by the
// access layer and the injected send-HTTP-request capability.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the per-request timeout used when none is configured.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes bounds how much of a response body is read into memory.
const maxBodyBytes = 32 << 20

// ErrBodyTooLarge is returned by Send when a response body exceeds the limit.
var ErrBodyTooLarge = errors.New("response body too large")

// Request is one logical request issued by a forum operation.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string

	// RequiresAuth fails the request before any network call unless the
	// session is authenticated.
	RequiresAuth bool

	// Cacheable marks an idempotent read whose response may be served from cache.
	Cacheable bool
}

// Get builds a GET request.
func Get(path string, query url.Values) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query}
}

// PostJSON builds a POST request with a JSON body.
func PostJSON(path string, v any) (Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Request{}, fmt.Errorf("marshal request body: %w", err)
	}
	return Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        body,
		ContentType: "application/json",
	}, nil
}

// PostForm builds a POST request with a form-encoded body.
func PostForm(path string, form url.Values) Request {
	return Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        []byte(form.Encode()),
		ContentType: "application/x-www-form-urlencoded; charset=UTF-8",
	}
}

// Attempt is the immutable record of one network call.
type Attempt struct {
	Method string
	URL    string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	Number int
}

// WithNumber returns a copy of the attempt with the given attempt number.
// Headers are cloned so later mutation of one attempt never leaks into another.
func (a *Attempt) WithNumber(n int) *Attempt {
	c := *a
	c.Header = a.Header.Clone()
	c.Number = n
	return &c
}

// WithHeader returns a copy with extra headers merged in.
func (a *Attempt) WithHeader(extra http.Header) *Attempt {
	c := *a
	c.Header = a.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	for k, vs := range extra {
		if strings.EqualFold(k, "Cookie") {
			for _, v := range vs {
				appendCookie(c.Header, v)
			}
			continue
		}
		c.Header[k] = append([]string(nil), vs...)
	}
	return &c
}

// FullURL returns the attempt URL including the encoded query.
func (a *Attempt) FullURL() string {
	if len(a.Query) == 0 {
		return a.URL
	}
	sep := "?"
	if strings.Contains(a.URL, "?") {
		sep = "&"
	}
	return a.URL + sep + a.Query.Encode()
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// MediaType returns the lower-cased media type of the Content-Type header.
func (r *Response) MediaType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	return mt
}

// IsJSON reports whether the response declares or looks like JSON.
func (r *Response) IsJSON() bool {
	mt := r.MediaType()
	if strings.Contains(mt, "json") {
		return true
	}
	trimmed := bytes.TrimSpace(r.Body)
	return mt == "" && len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// Cookies parses the Set-Cookie headers of the response.
func (r *Response) Cookies() []*http.Cookie {
	return (&http.Response{Header: r.Header}).Cookies()
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}
	return nil
}

// Transport sends a single attempt. It returns an error only for
// network-level failures; any HTTP status is a successful send.
type Transport interface {
	Send(ctx context.Context, attempt *Attempt) (*Response, error)
}

// HTTPTransport sends attempts with net/http.
//
// It deliberately has no cookie jar: every credential and clearance cookie is
// attached explicitly by the session manager or the challenge engine.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewHTTPTransport creates a transport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration, userAgent string) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBody:   maxBodyBytes,
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *HTTPTransport) SetHTTPClient(c *http.Client) {
	t.client = c
}

// SetMaxBodyBytes sets the response body limit (for testing).
func (t *HTTPTransport) SetMaxBodyBytes(n int64) {
	t.maxBody = n
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, attempt *Attempt) (*Response, error) {
	var body io.Reader
	if len(attempt.Body) > 0 {
		body = bytes.NewReader(attempt.Body)
	}

	req, err := http.NewRequestWithContext(ctx, attempt.Method, attempt.FullURL(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range attempt.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(data)) > t.maxBody {
		return nil, fmt.Errorf("%w: %s is over %d bytes", ErrBodyTooLarge, req.URL.Path, t.maxBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        req.URL.String(),
	}, nil
}

// ResolveURL returns pathOrURL unchanged when absolute, otherwise joins it
// to base with exactly one slash.
func ResolveURL(base, pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(pathOrURL, "/")
}

// appendCookie adds a cookie pair to the single Cookie header of h.
func appendCookie(h http.Header, pair string) {
	if pair == "" {
		return
	}
	if existing := h.Get("Cookie"); existing != "" {
		h.Set("Cookie", existing+"; "+pair)
		return
	}
	h.Set("Cookie", pair)
}

// CookieHeader renders cookies as a single Cookie header value.
func CookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
