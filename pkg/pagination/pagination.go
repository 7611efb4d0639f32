package pagination

import (
	"context"
	"errors"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/rs/zerolog"
)

// DefaultMaxPages bounds a walk when Config.MaxPages is zero.
const DefaultMaxPages = 100

// Config bounds a pagination walk.
type Config struct {
	// MaxPages is the page ceiling; needing more is ErrPaginationOverrun.
	MaxPages int

	// MaxItems truncates the result once reached. Zero means no limit.
	MaxItems int

	Logger zerolog.Logger
}

func (c Config) maxPages() int {
	if c.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return c.MaxPages
}

// Result is the outcome of a walk.
type Result[T any] struct {
	Items []T
	Pages int

	// Partial is set when the walk was cancelled before completion.
	Partial bool

	// Truncated is set when MaxItems cut the walk short.
	Truncated bool
}

// OffsetPage is one page of an offset-paginated listing.
type OffsetPage[T any] struct {
	Items []T

	// Last is the index of the last item in Items.
	Last int

	// HighWater is the highest index the forum reports as available.
	HighWater int
}

// OffsetFetcher loads the page starting at offset.
type OffsetFetcher[T any] func(ctx context.Context, offset int) (OffsetPage[T], error)

// FetchOffset walks an offset-paginated listing from start.
//
// The next offset is the last returned index plus one, so short pages are
// fine. The walk ends when a page reaches the high-water mark, comes back
// empty or fails to move past the requested offset.
func FetchOffset[T any](ctx context.Context, cfg Config, start int, fetch OffsetFetcher[T]) (Result[T], error) {
	var res Result[T]
	offset := start

	for {
		if err := ctx.Err(); err != nil {
			return cancelled(res, err)
		}
		if res.Pages >= cfg.maxPages() {
			return Result[T]{}, overrun(cfg, res.Pages)
		}

		page, err := fetch(ctx, offset)
		res.Pages++
		if err != nil {
			if apierror.KindOf(err) == apierror.KindCancelled || errors.Is(err, context.Canceled) {
				return cancelled(res, err)
			}
			return Result[T]{Pages: res.Pages}, err
		}

		res.Items = append(res.Items, page.Items...)
		if truncate(cfg, &res) {
			break
		}

		if len(page.Items) == 0 || page.Last >= page.HighWater {
			break
		}
		if page.Last < offset {
			cfg.Logger.Warn().
				Int("offset", offset).
				Int("last", page.Last).
				Msg("Page made no progress, stopping")
			break
		}
		offset = page.Last + 1
	}

	cfg.Logger.Debug().Int("pages", res.Pages).Int("items", len(res.Items)).Msg("Offset pagination complete")
	return res, nil
}

// CursorPage is one page of a cursor-paginated listing.
type CursorPage[T any] struct {
	Items   []T
	Next    string
	HasMore bool
}

// CursorFetcher loads the page at cursor. The first call gets the initial cursor.
type CursorFetcher[T any] func(ctx context.Context, cursor string) (CursorPage[T], error)

// FetchCursor walks a cursor-paginated listing starting at first.
// It stops when HasMore is false, Next is empty or Next was already visited.
func FetchCursor[T any](ctx context.Context, cfg Config, first string, fetch CursorFetcher[T]) (Result[T], error) {
	var res Result[T]
	cursor := first
	seen := map[string]bool{first: true}

	for {
		if err := ctx.Err(); err != nil {
			return cancelled(res, err)
		}
		if res.Pages >= cfg.maxPages() {
			return Result[T]{}, overrun(cfg, res.Pages)
		}

		page, err := fetch(ctx, cursor)
		res.Pages++
		if err != nil {
			if apierror.KindOf(err) == apierror.KindCancelled || errors.Is(err, context.Canceled) {
				return cancelled(res, err)
			}
			return Result[T]{Pages: res.Pages}, err
		}

		res.Items = append(res.Items, page.Items...)
		if truncate(cfg, &res) {
			break
		}

		if !page.HasMore || page.Next == "" {
			break
		}
		if seen[page.Next] {
			cfg.Logger.Warn().Str("cursor", page.Next).Msg("Cursor repeated, stopping")
			break
		}
		seen[page.Next] = true
		cursor = page.Next
	}

	cfg.Logger.Debug().Int("pages", res.Pages).Int("items", len(res.Items)).Msg("Cursor pagination complete")
	return res, nil
}

// FetchOne loads a single page. Callers that want whatever arrived before a
// failure walk pages themselves with it.
func FetchOne[P any](ctx context.Context, fetch func(context.Context) (P, error)) (P, error) {
	var zero P
	if err := ctx.Err(); err != nil {
		return zero, apierror.Wrap(apierror.KindCancelled, err, "page fetch cancelled")
	}
	return fetch(ctx)
}

func truncate[T any](cfg Config, res *Result[T]) bool {
	if cfg.MaxItems <= 0 || len(res.Items) < cfg.MaxItems {
		return false
	}
	res.Truncated = len(res.Items) > cfg.MaxItems
	res.Items = res.Items[:cfg.MaxItems]
	return true
}

func cancelled[T any](res Result[T], cause error) (Result[T], error) {
	res.Partial = true
	if apierror.KindOf(cause) == apierror.KindCancelled {
		return res, cause
	}
	return res, apierror.Wrap(apierror.KindCancelled, cause, "pagination cancelled after %d page(s)", res.Pages)
}

func overrun(cfg Config, pages int) error {
	cfg.Logger.Warn().Int("pages", pages).Msg("Page ceiling reached")
	return apierror.New(apierror.KindPaginationOverrun, "more than %d pages", cfg.maxPages())
}
