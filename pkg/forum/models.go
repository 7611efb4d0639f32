package forum

import (
	"encoding/json"
	"time"
)

// TopicSummary is one row of a topic list.
type TopicSummary struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug,omitempty"`
	PostsCount   int       `json:"posts_count"`
	Views        int       `json:"views"`
	LikeCount    int       `json:"like_count"`
	CategoryID   int64     `json:"category_id,omitempty"`
	CategoryName string    `json:"category_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastPostedAt time.Time `json:"last_posted_at"`
}

// TopicInfo is topic metadata without posts.
type TopicInfo struct {
	TopicID           int64     `json:"topic_id"`
	Title             string    `json:"title"`
	PostCount         int       `json:"post_count"`
	HighestPostNumber int       `json:"highest_post_number"`
	LastPostedAt      time.Time `json:"last_posted_at"`
}

// Post is one post of a topic.
type Post struct {
	ID                int64     `json:"id"`
	PostNumber        int       `json:"post_number"`
	Username          string    `json:"username"`
	Cooked            string    `json:"cooked,omitempty"`
	Raw               string    `json:"raw,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	LikeCount         int       `json:"like_count"`
	ReplyCount        int       `json:"reply_count"`
	ReplyToPostNumber int       `json:"reply_to_post_number,omitempty"`
}

// CreatedTopic is the result of CreateTopic.
type CreatedTopic struct {
	TopicID    int64  `json:"topic_id"`
	TopicSlug  string `json:"topic_slug"`
	PostID     int64  `json:"post_id"`
	PostNumber int    `json:"post_number"`
}

// CreatedPost is the result of CreatePost.
type CreatedPost struct {
	PostID     int64  `json:"post_id"`
	PostNumber int    `json:"post_number"`
	TopicID    int64  `json:"topic_id"`
	TopicSlug  string `json:"topic_slug"`
}

// SearchPost is a post hit.
type SearchPost struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	PostNumber int       `json:"post_number"`
	Username   string    `json:"username,omitempty"`
	Blurb      string    `json:"blurb,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LikeCount  int       `json:"like_count"`
}

// SearchTopic is a topic referenced by search hits.
type SearchTopic struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	PostsCount   int       `json:"posts_count"`
	Views        int       `json:"views"`
	LikeCount    int       `json:"like_count"`
	CategoryID   int64     `json:"category_id,omitempty"`
	CategoryName string    `json:"category_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchUser is a user hit.
type SearchUser struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name,omitempty"`
	AvatarTemplate string `json:"avatar_template,omitempty"`
}

// GroupedSearchResult carries result counts and the "more" flags.
type GroupedSearchResult struct {
	PostIDs             []int64 `json:"post_ids"`
	TopicIDs            []int64 `json:"topic_ids,omitempty"`
	UserIDs             []int64 `json:"user_ids"`
	MorePosts           bool    `json:"more_posts"`
	MoreTopics          bool    `json:"more_topics"`
	MoreFullPageResults bool    `json:"more_full_page_results"`
}

// SearchResult is one search page, or several merged by SearchAll.
type SearchResult struct {
	Posts   []SearchPost         `json:"posts"`
	Topics  []SearchTopic        `json:"topics"`
	Users   []SearchUser         `json:"users"`
	Grouped *GroupedSearchResult `json:"grouped_search_result,omitempty"`
	Pages   int                  `json:"pages,omitempty"`
}

// Category is a forum category. Subcategories carry their parent's ID.
type Category struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Slug             string `json:"slug,omitempty"`
	Description      string `json:"description,omitempty"`
	TopicCount       int    `json:"topic_count"`
	PostCount        int    `json:"post_count"`
	ParentCategoryID int64  `json:"parent_category_id,omitempty"`
	Color            string `json:"color,omitempty"`
}

// CategoryMap maps category IDs to names.
type CategoryMap map[int64]string

// Name returns the category name or "".
func (m CategoryMap) Name(id int64) string {
	return m[id]
}

// UserAction is one entry of a user's activity stream.
type UserAction struct {
	ActionType     int       `json:"action_type"`
	TopicID        int64     `json:"topic_id,omitempty"`
	PostNumber     int       `json:"post_number,omitempty"`
	Title          string    `json:"title,omitempty"`
	Excerpt        string    `json:"excerpt,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Username       string    `json:"username,omitempty"`
	ActingUsername string    `json:"acting_username,omitempty"`
}

// Badge is a granted badge.
type Badge struct {
	ID          int64     `json:"id"`
	BadgeID     int64     `json:"badge_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	GrantedAt   time.Time `json:"granted_at"`
	BadgeTypeID int       `json:"badge_type_id,omitempty"`
}

// BadgeInfo describes a badge type.
type BadgeInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	BadgeTypeID int    `json:"badge_type_id,omitempty"`
}

// UserBadges lists a user's badges.
type UserBadges struct {
	Badges     []Badge     `json:"badges"`
	BadgeTypes []BadgeInfo `json:"badge_types,omitempty"`
}

// UserStats are profile counters.
type UserStats struct {
	PostsReadCount int `json:"posts_read_count"`
	TopicsEntered  int `json:"topics_entered"`
	LikesGiven     int `json:"likes_given"`
	LikesReceived  int `json:"likes_received"`
	DaysVisited    int `json:"days_visited"`
	PostCount      int `json:"post_count"`
	TopicCount     int `json:"topic_count"`
}

// UserSummary is a user's profile summary.
type UserSummary struct {
	UserID     int64             `json:"user_id,omitempty"`
	Username   string            `json:"username"`
	Name       string            `json:"name,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	LastSeenAt time.Time         `json:"last_seen_at"`
	Stats      UserStats         `json:"stats"`
	Badges     []Badge           `json:"badges"`
	TopTopics  []json.RawMessage `json:"top_topics"`
	TopReplies []json.RawMessage `json:"top_replies"`
}

// FollowUser is an entry of a follow list.
type FollowUser struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name,omitempty"`
	AvatarTemplate string `json:"avatar_template,omitempty"`
}

// FollowList is a page of followers or followed users.
type FollowList struct {
	Users      []FollowUser `json:"users"`
	TotalCount int          `json:"total_count"`
}

// UserReactions holds the raw reaction records of a user.
type UserReactions struct {
	Reactions []json.RawMessage `json:"reactions"`
}

// Notification is one notification of the logged-in user.
type Notification struct {
	ID               int64          `json:"id"`
	NotificationType int            `json:"notification_type"`
	Read             bool           `json:"read"`
	CreatedAt        time.Time      `json:"created_at"`
	TopicID          int64          `json:"topic_id,omitempty"`
	PostNumber       int            `json:"post_number,omitempty"`
	Slug             string         `json:"slug,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
}

// Bookmark is a created bookmark.
type Bookmark struct {
	ID                   int64  `json:"id"`
	BookmarkableID       int64  `json:"bookmarkable_id"`
	BookmarkableType     string `json:"bookmarkable_type"`
	Name                 string `json:"name,omitempty"`
	ReminderAt           string `json:"reminder_at,omitempty"`
	AutoDeletePreference int    `json:"auto_delete_preference"`
}

// NotificationLevel is a topic subscription level.
type NotificationLevel int

const (
	LevelMuted    NotificationLevel = 0
	LevelNormal   NotificationLevel = 1
	LevelTracking NotificationLevel = 2
	LevelWatching NotificationLevel = 3
)

// String returns the Discourse name of the level.
func (l NotificationLevel) String() string {
	switch l {
	case LevelMuted:
		return "muted"
	case LevelNormal:
		return "normal"
	case LevelTracking:
		return "tracking"
	case LevelWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// ParseNotificationLevel accepts a level name.
func ParseNotificationLevel(s string) (NotificationLevel, bool) {
	for l := LevelMuted; l <= LevelWatching; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// SubscriptionResult is the outcome of SubscribeTopic.
type SubscriptionResult struct {
	Success           bool              `json:"success"`
	NotificationLevel NotificationLevel `json:"notification_level"`
}

// SessionInfo describes the current session.
type SessionInfo struct {
	Authenticated bool   `json:"is_authenticated"`
	State         string `json:"state"`
	UserID        int64  `json:"user_id,omitempty"`
	Username      string `json:"username,omitempty"`
	Name          string `json:"name,omitempty"`
}
