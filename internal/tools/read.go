package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sternrassler/forum-client/pkg/forum"
)

func (s *Server) registerDiscoveryTools() {
	s.addTool(mcp.NewTool("get_hot_topics",
		mcp.WithDescription("Currently trending topics, ranked by recent activity."),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 0")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleHotTopics)

	s.addTool(mcp.NewTool("get_new_topics",
		mcp.WithDescription("Most recently active topics."),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 0")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleNewTopics)

	s.addTool(mcp.NewTool("get_top_topics",
		mcp.WithDescription("Top topics for a time period."),
		mcp.WithString("period",
			mcp.Description("Time window"),
			mcp.Enum(forum.TopPeriods...),
		),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 0")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleTopTopics)

	s.addTool(mcp.NewTool("search_forum",
		mcp.WithDescription("Search posts, topics and users. Supports Discourse operators such as in:title, @user, #category, before: and after:."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithNumber("page", mcp.Description("Result page, starting at 1")),
		mcp.WithString("order",
			mcp.Description("Sort order"),
			mcp.Enum(forum.SearchOrders...),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleSearch)

	s.addTool(mcp.NewTool("search_all",
		mcp.WithDescription("Search and follow result pages until the forum reports no more full pages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithString("order",
			mcp.Description("Sort order"),
			mcp.Enum(forum.SearchOrders...),
		),
		mcp.WithNumber("max_results", mcp.Description("Stop after this many post hits")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleSearchAll)

	s.addTool(mcp.NewTool("get_categories",
		mcp.WithDescription("All categories including subcategories, with their IDs."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleCategories)
}

func (s *Server) registerReadingTools() {
	s.addTool(mcp.NewTool("get_topic_info",
		mcp.WithDescription("Topic metadata: title, post count, highest post number and timestamps."),
		mcp.WithNumber("topic_id", mcp.Required(), mcp.Description("Numeric topic ID")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleTopicInfo)

	s.addTool(mcp.NewTool("get_topic_infos",
		mcp.WithDescription("Metadata for several topics, fetched concurrently."),
		mcp.WithArray("topic_ids",
			mcp.Required(),
			mcp.Description("Numeric topic IDs"),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleTopicInfos)

	s.addTool(mcp.NewTool("get_topic_posts",
		mcp.WithDescription("One batch of about 20 posts starting at a post number."),
		mcp.WithNumber("topic_id", mcp.Required(), mcp.Description("Numeric topic ID")),
		mcp.WithNumber("post_number", mcp.Description("First post number, default 1")),
		mcp.WithBoolean("include_raw", mcp.Description("Include the markdown source of each post")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleTopicPosts)

	s.addTool(mcp.NewTool("get_all_topic_posts",
		mcp.WithDescription("Every post of a topic in a post-number range, following pages automatically."),
		mcp.WithNumber("topic_id", mcp.Required(), mcp.Description("Numeric topic ID")),
		mcp.WithBoolean("include_raw", mcp.Description("Include the markdown source of each post")),
		mcp.WithNumber("start", mcp.Description("First post number, default 1")),
		mcp.WithNumber("end", mcp.Description("Last post number to include")),
		mcp.WithNumber("max_posts", mcp.Description("Stop after this many posts")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleAllTopicPosts)
}

func (s *Server) handleHotTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.forum.HotTopics(ctx, mcp.ParseInt(req, "page", 0)))
}

func (s *Server) handleNewTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.forum.NewTopics(ctx, mcp.ParseInt(req, "page", 0)))
}

func (s *Server) handleTopTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	period := mcp.ParseString(req, "period", "")
	return result(s.forum.TopTopics(ctx, period, mcp.ParseInt(req, "page", 0)))
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, bad := requiredString(req, "query")
	if bad != nil {
		return bad, nil
	}
	page := mcp.ParseInt(req, "page", 1)
	order := strings.TrimSpace(mcp.ParseString(req, "order", ""))
	return result(s.forum.Search(ctx, query, page, order))
}

func (s *Server) handleSearchAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, bad := requiredString(req, "query")
	if bad != nil {
		return bad, nil
	}
	res, err := s.forum.SearchAll(ctx, query, forum.SearchOptions{
		Order:      strings.TrimSpace(mcp.ParseString(req, "order", "")),
		MaxResults: mcp.ParseInt(req, "max_results", 0),
	})
	if err != nil && res != nil {
		// Partial results are still useful to the caller.
		s.logger.Warn().Err(err).Str("query", query).Int("pages", res.Pages).Msg("Search stopped early")
		return jsonResult(struct {
			*forum.SearchResult
			Error string `json:"error"`
		}{res, err.Error()})
	}
	return result(res, err)
}

func (s *Server) handleCategories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.forum.Categories(ctx))
}

func (s *Server) handleTopicInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requiredID(req, "topic_id")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.TopicInfo(ctx, id))
}

func (s *Server) handleTopicInfos(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := int64Slice(req, "topic_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(ids) == 0 {
		return mcp.NewToolResultError("topic_ids is required"), nil
	}
	infos, err := s.forum.TopicInfos(ctx, ids)
	if err != nil && len(infos) > 0 {
		return jsonResult(struct {
			Topics map[int64]forum.TopicInfo `json:"topics"`
			Error  string                    `json:"error"`
		}{infos, err.Error()})
	}
	return result(infos, err)
}

func (s *Server) handleTopicPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requiredID(req, "topic_id")
	if bad != nil {
		return bad, nil
	}
	postNumber := mcp.ParseInt(req, "post_number", 1)
	includeRaw := mcp.ParseBoolean(req, "include_raw", false)
	return result(s.forum.TopicPosts(ctx, id, postNumber, includeRaw))
}

func (s *Server) handleAllTopicPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requiredID(req, "topic_id")
	if bad != nil {
		return bad, nil
	}
	posts, err := s.forum.AllTopicPosts(ctx, id, forum.TopicPostsOptions{
		IncludeRaw: mcp.ParseBoolean(req, "include_raw", false),
		Start:      mcp.ParseInt(req, "start", 1),
		End:        mcp.ParseInt(req, "end", 0),
		MaxPosts:   mcp.ParseInt(req, "max_posts", 0),
	})
	if err != nil && len(posts) > 0 {
		return jsonResult(struct {
			Posts []forum.Post `json:"posts"`
			Error string       `json:"error"`
		}{posts, err.Error()})
	}
	return result(posts, err)
}
