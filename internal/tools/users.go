package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sternrassler/forum-client/pkg/forum"
)

func (s *Server) registerUserTools() {
	username := mcp.WithString("username", mcp.Required(), mcp.Description("User handle without @"))

	s.addTool(mcp.NewTool("get_user_summary",
		mcp.WithDescription("Profile summary: stats, badges, top topics and replies."),
		username,
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUserSummary)

	s.addTool(mcp.NewTool("get_user_topics",
		mcp.WithDescription("Topics created by a user."),
		username,
		mcp.WithNumber("page", mcp.Description("Page number, starting at 0")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUserTopics)

	s.addTool(mcp.NewTool("get_user_replies",
		mcp.WithDescription("Replies posted by a user."),
		username,
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUserReplies)

	s.addTool(mcp.NewTool("get_user_actions",
		mcp.WithDescription("Activity stream of a user. Filters: 1 likes, 4 topics, 5 replies."),
		username,
		mcp.WithNumber("filter", mcp.Description("Action type filter")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithNumber("max_items", mcp.Description("Follow pages until this many actions; 0 fetches one page")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUserActions)

	s.addTool(mcp.NewTool("get_user_badges",
		mcp.WithDescription("Badges granted to a user."),
		username,
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUserBadges)

	s.addTool(mcp.NewTool("get_user_following",
		mcp.WithDescription("Users that a user follows."),
		username,
		mcp.WithNumber("page", mcp.Description("Page number")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUserFollowing)

	s.addTool(mcp.NewTool("get_user_followers",
		mcp.WithDescription("Users following a user."),
		username,
		mcp.WithNumber("page", mcp.Description("Page number")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUserFollowers)

	s.addTool(mcp.NewTool("get_user_reactions",
		mcp.WithDescription("Post reactions by a user."),
		username,
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUserReactions)

	s.addTool(mcp.NewTool("list_users_with_badge",
		mcp.WithDescription("Users who earned a badge."),
		mcp.WithNumber("badge_id", mcp.Required(), mcp.Description("Numeric badge ID")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUsersWithBadge)
}

func (s *Server) handleUserSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.UserSummary(ctx, name))
}

func (s *Server) handleUserTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.UserTopics(ctx, name, mcp.ParseInt(req, "page", 0)))
}

func (s *Server) handleUserReplies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.UserReplies(ctx, name, mcp.ParseInt(req, "offset", 0)))
}

func (s *Server) handleUserActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	filter := mcp.ParseInt(req, "filter", 0)
	if maxItems := mcp.ParseInt(req, "max_items", 0); maxItems > 0 {
		actions, err := s.forum.AllUserActions(ctx, name, filter, maxItems)
		if err != nil && len(actions) > 0 {
			return jsonResult(struct {
				Actions []forum.UserAction `json:"actions"`
				Error   string             `json:"error"`
			}{actions, err.Error()})
		}
		return result(actions, err)
	}
	return result(s.forum.UserActions(ctx, name, filter, mcp.ParseInt(req, "offset", 0)))
}

func (s *Server) handleUserBadges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.UserBadges(ctx, name))
}

func (s *Server) handleUserFollowing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.UserFollowing(ctx, name, mcp.ParseInt(req, "page", 0)))
}

func (s *Server) handleUserFollowers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.UserFollowers(ctx, name, mcp.ParseInt(req, "page", 0)))
}

func (s *Server) handleUserReactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.UserReactions(ctx, name, mcp.ParseInt(req, "offset", 0)))
}

func (s *Server) handleUsersWithBadge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requiredID(req, "badge_id")
	if bad != nil {
		return bad, nil
	}
	raw, err := s.forum.UsersWithBadge(ctx, id, mcp.ParseInt(req, "offset", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
