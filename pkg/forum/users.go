package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/Sternrassler/forum-client/pkg/pagination"
)

// Action filters for UserActions.
const (
	ActionLikes   = 1
	ActionTopics  = 4
	ActionReplies = 5
)

type userSummaryReply struct {
	UserSummary struct {
		UserStats
		Badges     []Badge           `json:"badges"`
		TopTopics  []json.RawMessage `json:"top_topics"`
		TopReplies []json.RawMessage `json:"top_replies"`
	} `json:"user_summary"`
	Users []struct {
		ID         int64     `json:"id"`
		Username   string    `json:"username"`
		Name       string    `json:"name"`
		CreatedAt  time.Time `json:"created_at"`
		LastSeenAt time.Time `json:"last_seen_at"`
	} `json:"users"`
}

func userPath(format, username string) (string, error) {
	if username == "" {
		return "", invalidArgument("username is required")
	}
	return fmt.Sprintf(format, url.PathEscape(username)), nil
}

// UserSummary returns a user's profile summary.
func (f *Forum) UserSummary(ctx context.Context, username string) (*UserSummary, error) {
	path, err := userPath("/u/%s/summary.json", username)
	if err != nil {
		return nil, err
	}
	var reply userSummaryReply
	if err := f.getJSON(ctx, path, nil, &reply); err != nil {
		return nil, err
	}

	s := &UserSummary{
		Username:   username,
		Stats:      reply.UserSummary.UserStats,
		Badges:     reply.UserSummary.Badges,
		TopTopics:  reply.UserSummary.TopTopics,
		TopReplies: reply.UserSummary.TopReplies,
	}
	if len(reply.Users) > 0 {
		u := reply.Users[0]
		s.UserID = u.ID
		if u.Username != "" {
			s.Username = u.Username
		}
		s.Name = u.Name
		s.CreatedAt = u.CreatedAt
		s.LastSeenAt = u.LastSeenAt
	}
	return s, nil
}

// UserActions returns one page of a user's activity. filter zero means all.
func (f *Forum) UserActions(ctx context.Context, username string, filter, offset int) ([]UserAction, error) {
	if username == "" {
		return nil, invalidArgument("username is required")
	}
	q := url.Values{"username": {username}}
	if filter > 0 {
		q.Set("filter", strconv.Itoa(filter))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var reply struct {
		UserActions []UserAction `json:"user_actions"`
	}
	if err := f.getJSON(ctx, "/user_actions.json", q, &reply); err != nil {
		return nil, err
	}
	return reply.UserActions, nil
}

// AllUserActions pages through a user's activity until an empty page.
// maxItems zero means no limit beyond the page ceiling.
func (f *Forum) AllUserActions(ctx context.Context, username string, filter, maxItems int) ([]UserAction, error) {
	res, err := pagination.FetchCursor(ctx, f.pageConfig(maxItems), "0",
		func(ctx context.Context, cursor string) (pagination.CursorPage[UserAction], error) {
			offset, _ := strconv.Atoi(cursor)
			actions, err := f.UserActions(ctx, username, filter, offset)
			if err != nil {
				return pagination.CursorPage[UserAction]{}, err
			}
			return pagination.CursorPage[UserAction]{
				Items:   actions,
				Next:    strconv.Itoa(offset + len(actions)),
				HasMore: len(actions) > 0,
			}, nil
		})
	if err != nil {
		if res.Partial {
			return res.Items, err
		}
		return nil, err
	}
	return res.Items, nil
}

// UserReplies returns one page of a user's replies.
func (f *Forum) UserReplies(ctx context.Context, username string, offset int) ([]UserAction, error) {
	return f.UserActions(ctx, username, ActionReplies, offset)
}

// UserTopics returns topics created by a user.
func (f *Forum) UserTopics(ctx context.Context, username string, page int) ([]TopicSummary, error) {
	path, err := userPath("/topics/created-by/%s.json", username)
	if err != nil {
		return nil, err
	}
	return f.topicList(ctx, path, pageQuery(nil, page))
}

// UserBadges returns the badges a user earned.
func (f *Forum) UserBadges(ctx context.Context, username string) (*UserBadges, error) {
	path, err := userPath("/user-badges/%s.json", username)
	if err != nil {
		return nil, err
	}
	var reply struct {
		UserBadges []Badge     `json:"user_badges"`
		Badges     []BadgeInfo `json:"badges"`
	}
	if err := f.getJSON(ctx, path, url.Values{"grouped": {"true"}}, &reply); err != nil {
		return nil, err
	}

	names := make(map[int64]BadgeInfo, len(reply.Badges))
	for _, b := range reply.Badges {
		names[b.ID] = b
	}
	for i, b := range reply.UserBadges {
		if info, ok := names[b.BadgeID]; ok && b.Name == "" {
			reply.UserBadges[i].Name = info.Name
			reply.UserBadges[i].Description = info.Description
			reply.UserBadges[i].BadgeTypeID = info.BadgeTypeID
		}
	}
	return &UserBadges{Badges: reply.UserBadges, BadgeTypes: reply.Badges}, nil
}

// UserFollowing returns users followed by username.
func (f *Forum) UserFollowing(ctx context.Context, username string, page int) (*FollowList, error) {
	return f.followList(ctx, "/u/%s/follow/following.json", username, page)
}

// UserFollowers returns users following username.
func (f *Forum) UserFollowers(ctx context.Context, username string, page int) (*FollowList, error) {
	return f.followList(ctx, "/u/%s/follow/followers.json", username, page)
}

func (f *Forum) followList(ctx context.Context, format, username string, page int) (*FollowList, error) {
	path, err := userPath(format, username)
	if err != nil {
		return nil, err
	}
	// The endpoint answers either a bare array or {"users": [...]}.
	var raw json.RawMessage
	if err := f.getJSON(ctx, path, pageQuery(nil, page), &raw); err != nil {
		return nil, err
	}
	var list FollowList
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &list.Users); err != nil {
			return nil, apierror.Wrap(apierror.KindInvalidResponse, err, "decode follow list")
		}
	} else if err := json.Unmarshal(raw, &list); err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidResponse, err, "decode follow list")
	}
	if list.TotalCount == 0 {
		list.TotalCount = len(list.Users)
	}
	return &list, nil
}

// UserReactions returns a page of reactions by username.
func (f *Forum) UserReactions(ctx context.Context, username string, offset int) (*UserReactions, error) {
	if username == "" {
		return nil, invalidArgument("username is required")
	}
	q := url.Values{"username": {username}}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	// Answered as a bare array by the reactions plugin, or wrapped.
	var raw json.RawMessage
	if err := f.getJSON(ctx, "/discourse-reactions/posts/reactions.json", q, &raw); err != nil {
		return nil, err
	}
	var out UserReactions
	var err error
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &out.Reactions)
	} else {
		err = json.Unmarshal(raw, &out)
	}
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidResponse, err, "decode reactions")
	}
	return &out, nil
}

// UsersWithBadge returns the raw grant list for badgeID, starting at offset.
func (f *Forum) UsersWithBadge(ctx context.Context, badgeID int64, offset int) (json.RawMessage, error) {
	if badgeID <= 0 {
		return nil, invalidArgument("badge id must be positive, got %d", badgeID)
	}
	q := url.Values{"badge_id": {strconv.FormatInt(badgeID, 10)}}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var raw json.RawMessage
	if err := f.getJSON(ctx, "/user_badges.json", q, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
