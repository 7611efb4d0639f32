package tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/Sternrassler/forum-client/pkg/forum"
)

func (s *Server) registerAuthTools() {
	s.addTool(mcp.NewTool("login",
		mcp.WithDescription("Log in with username and password. Accounts with two-factor authentication need second_factor_token."),
		mcp.WithString("username", mcp.Required(), mcp.Description("Forum username or email")),
		mcp.WithString("password", mcp.Required(), mcp.Description("Account password")),
		mcp.WithString("second_factor_token", mcp.Description("TOTP code, if the account requires one")),
	), s.handleLogin)

	s.addTool(mcp.NewTool("submit_second_factor",
		mcp.WithDescription("Finish a login that is waiting for a two-factor code."),
		mcp.WithString("code", mcp.Required(), mcp.Description("TOTP code")),
	), s.handleSubmitSecondFactor)

	s.addTool(mcp.NewTool("logout",
		mcp.WithDescription("Drop the current session."),
		mcp.WithDestructiveHintAnnotation(false),
	), s.handleLogout)

	s.addTool(mcp.NewTool("get_current_session",
		mcp.WithDescription("Whether the server is logged in, and as whom."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleCurrentSession)

	s.addTool(mcp.NewTool("get_notifications",
		mcp.WithDescription("Notifications of the logged-in user. Requires login."),
		mcp.WithNumber("since_id", mcp.Description("Only notifications newer than this ID")),
		mcp.WithBoolean("only_unread", mcp.Description("Only unread notifications")),
		mcp.WithNumber("limit", mcp.Description("Maximum number to return")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleNotifications)

	s.addTool(mcp.NewTool("bookmark_post",
		mcp.WithDescription("Bookmark a post. Requires login."),
		mcp.WithNumber("post_id", mcp.Required(), mcp.Description("Numeric post ID")),
		mcp.WithString("name", mcp.Description("Bookmark label")),
		mcp.WithNumber("reminder_type", mcp.Description("Reminder setting")),
		mcp.WithString("reminder_at", mcp.Description("Reminder time, ISO 8601")),
		mcp.WithNumber("auto_delete_preference",
			mcp.Description("0 never, 1 when reminder sent, 2 on click, 3 after reminder (default)"),
		),
	), s.handleBookmarkPost)

	s.addTool(mcp.NewTool("subscribe_topic",
		mcp.WithDescription("Set the notification level of a topic. Requires login."),
		mcp.WithNumber("topic_id", mcp.Required(), mcp.Description("Numeric topic ID")),
		mcp.WithNumber("level", mcp.Description("0 muted, 1 normal, 2 tracking (default), 3 watching")),
	), s.handleSubscribeTopic)
}

// loginResult is what login reports back, including the pending state.
type loginResult struct {
	forum.SessionInfo
	SecondFactorRequired bool   `json:"requires_2fa,omitempty"`
	Message              string `json:"message,omitempty"`
}

func (s *Server) handleLogin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	username, bad := requiredString(req, "username")
	if bad != nil {
		return bad, nil
	}
	password, bad := requiredString(req, "password")
	if bad != nil {
		return bad, nil
	}
	code := mcp.ParseString(req, "second_factor_token", "")

	info, err := s.forum.Login(ctx, username, password)
	if errors.Is(err, apierror.ErrSecondFactorRequired) {
		if code == "" {
			return jsonResult(loginResult{
				SessionInfo:          info,
				SecondFactorRequired: true,
				Message:              "two-factor code required; call submit_second_factor",
			})
		}
		info, err = s.forum.SubmitSecondFactor(ctx, code)
	}
	if err != nil {
		return errorResult(err), nil
	}
	s.logger.Info().Str("username", info.Username).Msg("Logged in")
	return jsonResult(loginResult{SessionInfo: info})
}

func (s *Server) handleSubmitSecondFactor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, bad := requiredString(req, "code")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.SubmitSecondFactor(ctx, code))
}

func (s *Server) handleLogout(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.forum.Logout(); err != nil {
		return errorResult(err), nil
	}
	return result(s.forum.CurrentSession(ctx))
}

func (s *Server) handleCurrentSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.forum.CurrentSession(ctx))
}

func (s *Server) handleNotifications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.forum.Notifications(ctx, forum.NotificationOptions{
		SinceID:    mcp.ParseInt64(req, "since_id", 0),
		OnlyUnread: mcp.ParseBoolean(req, "only_unread", false),
		Limit:      mcp.ParseInt(req, "limit", 0),
	}))
}

func (s *Server) handleBookmarkPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requiredID(req, "post_id")
	if bad != nil {
		return bad, nil
	}
	return result(s.forum.BookmarkPost(ctx, id, forum.BookmarkOptions{
		Name:                 mcp.ParseString(req, "name", ""),
		ReminderType:         mcp.ParseInt(req, "reminder_type", 0),
		ReminderAt:           mcp.ParseString(req, "reminder_at", ""),
		AutoDeletePreference: mcp.ParseInt(req, "auto_delete_preference", 0),
	}))
}

func (s *Server) handleSubscribeTopic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requiredID(req, "topic_id")
	if bad != nil {
		return bad, nil
	}
	level := forum.NotificationLevel(mcp.ParseInt(req, "level", int(forum.LevelTracking)))
	return result(s.forum.SubscribeTopic(ctx, id, level))
}

func (s *Server) registerWriteTools() {
	s.addTool(mcp.NewTool("create_topic",
		mcp.WithDescription("Create a new topic. Requires login."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Topic title")),
		mcp.WithString("raw", mcp.Required(), mcp.Description("Body in markdown")),
		mcp.WithNumber("category_id", mcp.Description("Category to post in")),
		mcp.WithArray("tags",
			mcp.Description("Tags"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithDestructiveHintAnnotation(false),
	), s.handleCreateTopic)

	s.addTool(mcp.NewTool("create_post",
		mcp.WithDescription("Reply to a topic. Requires login."),
		mcp.WithNumber("topic_id", mcp.Required(), mcp.Description("Numeric topic ID")),
		mcp.WithString("raw", mcp.Required(), mcp.Description("Body in markdown")),
		mcp.WithNumber("reply_to_post_number", mcp.Description("Post number being answered")),
		mcp.WithDestructiveHintAnnotation(false),
	), s.handleCreatePost)
}

func (s *Server) handleCreateTopic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := stringSlice(req, "tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(s.forum.CreateTopic(ctx, forum.NewTopic{
		Title:      mcp.ParseString(req, "title", ""),
		Raw:        mcp.ParseString(req, "raw", ""),
		CategoryID: mcp.ParseInt64(req, "category_id", 0),
		Tags:       tags,
	}))
}

func (s *Server) handleCreatePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.forum.CreatePost(ctx, forum.NewPost{
		TopicID:           mcp.ParseInt64(req, "topic_id", 0),
		Raw:               mcp.ParseString(req, "raw", ""),
		ReplyToPostNumber: mcp.ParseInt(req, "reply_to_post_number", 0),
	}))
}
