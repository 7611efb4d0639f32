package forum

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/Sternrassler/forum-client/pkg/pagination"
)

// TopPeriods are the periods accepted by TopTopics.
var TopPeriods = []string{"daily", "weekly", "monthly", "quarterly", "yearly"}

type topicListReply struct {
	TopicList struct {
		Topics []TopicSummary `json:"topics"`
	} `json:"topic_list"`
}

type topicReply struct {
	Title             string    `json:"title"`
	PostsCount        int       `json:"posts_count"`
	HighestPostNumber int       `json:"highest_post_number"`
	LastPostedAt      time.Time `json:"last_posted_at"`
	PostStream        struct {
		Posts []Post `json:"posts"`
	} `json:"post_stream"`
}

// HotTopics returns trending topics. page is zero-based.
func (f *Forum) HotTopics(ctx context.Context, page int) ([]TopicSummary, error) {
	return f.topicList(ctx, "/hot.json", pageQuery(nil, page))
}

// NewTopics returns the latest topics. page is zero-based.
func (f *Forum) NewTopics(ctx context.Context, page int) ([]TopicSummary, error) {
	return f.topicList(ctx, "/latest.json", pageQuery(nil, page))
}

// TopTopics returns the top topics of period.
func (f *Forum) TopTopics(ctx context.Context, period string, page int) ([]TopicSummary, error) {
	if period == "" {
		period = "monthly"
	}
	if !contains(TopPeriods, period) {
		return nil, invalidArgument("period must be one of %v", TopPeriods)
	}
	return f.topicList(ctx, "/top.json", pageQuery(url.Values{"period": {period}}, page))
}

func (f *Forum) topicList(ctx context.Context, path string, q url.Values) ([]TopicSummary, error) {
	var reply topicListReply
	if err := f.getJSON(ctx, path, q, &reply); err != nil {
		return nil, err
	}
	topics := reply.TopicList.Topics
	f.enrichTopics(ctx, topics)
	return topics, nil
}

// TopicInfo returns topic metadata.
func (f *Forum) TopicInfo(ctx context.Context, topicID int64) (TopicInfo, error) {
	var reply topicReply
	if err := f.getJSON(ctx, fmt.Sprintf("/t/%d.json", topicID), nil, &reply); err != nil {
		return TopicInfo{}, err
	}
	return TopicInfo{
		TopicID:           topicID,
		Title:             reply.Title,
		PostCount:         reply.PostsCount,
		HighestPostNumber: reply.HighestPostNumber,
		LastPostedAt:      reply.LastPostedAt,
	}, nil
}

// TopicInfos looks up several topics concurrently. Topics that failed are
// missing from the map and their errors are joined into the returned error.
func (f *Forum) TopicInfos(ctx context.Context, topicIDs []int64) (map[int64]TopicInfo, error) {
	cfg := pagination.DefaultBatchConfig()
	if f.opts.Concurrency > 0 {
		cfg.MaxConcurrency = f.opts.Concurrency
	}
	cfg.Logger = f.logger
	bf := pagination.NewBatchFetcher(f.TopicInfo, cfg)
	return bf.FetchAll(ctx, topicIDs)
}

// TopicPosts returns one batch of posts starting at postNumber, sorted by
// post number.
func (f *Forum) TopicPosts(ctx context.Context, topicID int64, postNumber int, includeRaw bool) ([]Post, error) {
	reply, err := f.topicPostsPage(ctx, topicID, postNumber, includeRaw)
	if err != nil {
		return nil, err
	}
	return reply.PostStream.Posts, nil
}

func (f *Forum) topicPostsPage(ctx context.Context, topicID int64, postNumber int, includeRaw bool) (topicReply, error) {
	if postNumber < 1 {
		postNumber = 1
	}
	q := url.Values{
		"post_number":       {strconv.Itoa(postNumber)},
		"asc":               {"true"},
		"include_suggested": {"false"},
		"include_raw":       {strconv.FormatBool(includeRaw)},
	}
	var reply topicReply
	if err := f.getJSON(ctx, fmt.Sprintf("/t/topic/%d.json", topicID), q, &reply); err != nil {
		return topicReply{}, err
	}
	posts := reply.PostStream.Posts
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].PostNumber < posts[j].PostNumber })
	if !includeRaw {
		for i := range posts {
			posts[i].Raw = ""
		}
	}
	return reply, nil
}

// TopicPostsOptions bounds AllTopicPosts.
type TopicPostsOptions struct {
	IncludeRaw bool

	// Start is the first post number. Zero means 1.
	Start int

	// End is the last post number to include. Zero means no bound.
	End int

	// MaxPosts truncates the result. Zero means no limit.
	MaxPosts int
}

// AllTopicPosts walks a topic from opts.Start until the topic's highest post
// number (or opts.End) is reached.
func (f *Forum) AllTopicPosts(ctx context.Context, topicID int64, opts TopicPostsOptions) ([]Post, error) {
	start := opts.Start
	if start < 1 {
		start = 1
	}
	if opts.End > 0 && opts.End < start {
		return nil, invalidArgument("end %d is before start %d", opts.End, start)
	}

	res, err := pagination.FetchOffset(ctx, f.pageConfig(opts.MaxPosts), start,
		func(ctx context.Context, offset int) (pagination.OffsetPage[Post], error) {
			reply, err := f.topicPostsPage(ctx, topicID, offset, opts.IncludeRaw)
			if err != nil {
				return pagination.OffsetPage[Post]{}, err
			}
			page := pagination.OffsetPage[Post]{
				Last:      offset - 1,
				HighWater: reply.HighestPostNumber,
			}
			if opts.End > 0 && (page.HighWater == 0 || page.HighWater > opts.End) {
				page.HighWater = opts.End
			}
			for _, p := range reply.PostStream.Posts {
				if p.PostNumber > page.Last {
					page.Last = p.PostNumber
				}
				if p.PostNumber < offset || (opts.End > 0 && p.PostNumber > opts.End) {
					continue
				}
				page.Items = append(page.Items, p)
			}
			return page, nil
		})
	if err != nil {
		if res.Partial {
			return res.Items, err
		}
		return nil, err
	}

	f.logger.Info().
		Int64("topic_id", topicID).
		Int("posts", len(res.Items)).
		Int("pages", res.Pages).
		Msg("Fetched topic posts")
	return res.Items, nil
}

func pageQuery(q url.Values, page int) url.Values {
	if page <= 0 {
		return q
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("page", strconv.Itoa(page))
	return q
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
