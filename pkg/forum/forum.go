package forum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/Sternrassler/forum-client/pkg/client"
	"github.com/Sternrassler/forum-client/pkg/logging"
	"github.com/Sternrassler/forum-client/pkg/pagination"
	"github.com/Sternrassler/forum-client/pkg/session"
	"github.com/Sternrassler/forum-client/pkg/transport"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidArgument reports a caller mistake caught before any request.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrWriteDisabled is returned by write operations unless write mode is on.
	ErrWriteDisabled = errors.New("write operations are disabled")
)

// Dispatcher sends logical requests and decodes JSON replies.
type Dispatcher interface {
	DispatchJSON(ctx context.Context, req transport.Request, out any) error
}

// Options configures a Forum.
type Options struct {
	// WriteEnabled allows CreateTopic and CreatePost.
	WriteEnabled bool

	// MaxPages bounds every paginated operation. Zero means pagination.DefaultMaxPages.
	MaxPages int

	// Concurrency bounds batch operations such as TopicInfos.
	Concurrency int

	Logger *zerolog.Logger
}

// Forum exposes typed forum operations.
type Forum struct {
	dispatch Dispatcher
	session  *session.Manager
	baseURL  string
	opts     Options
	logger   zerolog.Logger

	catMu      sync.Mutex
	categories CategoryMap
}

// New creates a Forum on top of c.
func New(c *client.Client, opts Options) *Forum {
	return newForum(c, c.Session(), c.BaseURL(), opts)
}

func newForum(d Dispatcher, s *session.Manager, baseURL string, opts Options) *Forum {
	logger := logging.NewLogger("forum", opts.Logger)
	return &Forum{
		dispatch: d,
		session:  s,
		baseURL:  baseURL,
		opts:     opts,
		logger:   logger,
	}
}

// WriteEnabled reports whether write operations are allowed.
func (f *Forum) WriteEnabled() bool {
	return f.opts.WriteEnabled
}

func (f *Forum) pageConfig(maxItems int) pagination.Config {
	return pagination.Config{
		MaxPages: f.opts.MaxPages,
		MaxItems: maxItems,
		Logger:   f.logger,
	}
}

func (f *Forum) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req := transport.Get(path, query)
	req.Cacheable = true
	return f.dispatch.DispatchJSON(ctx, req, out)
}

// ajaxHeaders are the browser headers Discourse expects on state-changing calls.
func (f *Forum) ajaxHeaders(referer string) http.Header {
	return http.Header{
		"X-Requested-With": {"XMLHttpRequest"},
		"Referer":          {f.baseURL + referer},
	}
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
