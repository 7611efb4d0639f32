package forum

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/forum-client/pkg/pagination"
)

// SearchOrders are the sort orders accepted by Search.
var SearchOrders = []string{"relevance", "latest", "views", "likes", "op_likes", "posts", "activity"}

// Search runs one page of a forum search. query accepts Discourse operators
// ("in:title", "@user", "category:x", "#tag", "after:2024-01-01"). page is
// one-based; zero means the first page.
func (f *Forum) Search(ctx context.Context, query string, page int, order string) (*SearchResult, error) {
	q, err := searchQuery(query, order)
	if err != nil {
		return nil, err
	}
	return f.searchPage(ctx, q, page)
}

func searchQuery(query, order string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", invalidArgument("query is required")
	}
	if order == "" {
		return query, nil
	}
	order = strings.TrimPrefix(order, "order:")
	if !contains(SearchOrders, order) {
		return "", invalidArgument("order must be one of %v", SearchOrders)
	}
	if strings.Contains(query, "order:") {
		return query, nil
	}
	return query + " order:" + order, nil
}

func (f *Forum) searchPage(ctx context.Context, q string, page int) (*SearchResult, error) {
	params := url.Values{"q": {q}}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	var res SearchResult
	if err := f.getJSON(ctx, "/search.json", params, &res); err != nil {
		return nil, err
	}
	f.enrichSearchTopics(ctx, res.Topics)
	res.Pages = 1
	return &res, nil
}

// SearchOptions bounds SearchAll.
type SearchOptions struct {
	Order string

	// MaxResults truncates the post hits. Zero means no limit.
	MaxResults int
}

// SearchAll follows search pages while the forum reports more full pages.
// Topics and users referenced by several pages are listed once.
func (f *Forum) SearchAll(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	q, err := searchQuery(query, opts.Order)
	if err != nil {
		return nil, err
	}

	var (
		merged     SearchResult
		seenTopics = map[int64]bool{}
		seenUsers  = map[int64]bool{}
	)
	res, err := pagination.FetchCursor(ctx, f.pageConfig(opts.MaxResults), "1",
		func(ctx context.Context, cursor string) (pagination.CursorPage[SearchPost], error) {
			page, _ := strconv.Atoi(cursor)
			r, err := f.searchPage(ctx, q, page)
			if err != nil {
				return pagination.CursorPage[SearchPost]{}, err
			}
			for _, t := range r.Topics {
				if !seenTopics[t.ID] {
					seenTopics[t.ID] = true
					merged.Topics = append(merged.Topics, t)
				}
			}
			for _, u := range r.Users {
				if !seenUsers[u.ID] {
					seenUsers[u.ID] = true
					merged.Users = append(merged.Users, u)
				}
			}
			merged.Grouped = r.Grouped
			more := r.Grouped != nil && r.Grouped.MoreFullPageResults
			return pagination.CursorPage[SearchPost]{
				Items:   r.Posts,
				Next:    strconv.Itoa(page + 1),
				HasMore: more && len(r.Posts) > 0,
			}, nil
		})
	if err != nil && !res.Partial {
		return nil, err
	}

	merged.Posts = res.Items
	merged.Pages = res.Pages
	return &merged, err
}
