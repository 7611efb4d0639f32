package forum

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/forum-client/pkg/session"
	"github.com/Sternrassler/forum-client/pkg/transport"
)

// Login signs in with username and password. A second-factor account
// returns apierror.ErrSecondFactorRequired; finish with SubmitSecondFactor.
func (f *Forum) Login(ctx context.Context, username, password string) (SessionInfo, error) {
	st, err := f.session.Login(ctx, username, password)
	f.ClearCategoryCache()
	return sessionInfo(st), err
}

// SubmitSecondFactor completes a pending login.
func (f *Forum) SubmitSecondFactor(ctx context.Context, code string) (SessionInfo, error) {
	st, err := f.session.SubmitSecondFactor(ctx, code)
	f.ClearCategoryCache()
	return sessionInfo(st), err
}

// Logout drops the session locally.
func (f *Forum) Logout() error {
	if err := f.session.Logout(); err != nil {
		return err
	}
	f.ClearCategoryCache()
	return nil
}

// CurrentSession describes the session, resolving the username of API-key
// sessions on first use.
func (f *Forum) CurrentSession(ctx context.Context) (SessionInfo, error) {
	st := f.session.Status()
	info := sessionInfo(st)
	if !st.Authenticated() || info.Username != "" {
		return info, nil
	}
	id, err := f.session.Identity(ctx)
	if err != nil {
		return info, err
	}
	info.UserID = id.ID
	info.Username = id.Username
	info.Name = id.Name
	return info, nil
}

func sessionInfo(st session.Status) SessionInfo {
	return SessionInfo{
		Authenticated: st.Authenticated(),
		State:         st.State.String(),
		UserID:        st.Identity.ID,
		Username:      st.Identity.Username,
		Name:          st.Identity.Name,
	}
}

// NotificationOptions filters Notifications.
type NotificationOptions struct {
	// SinceID keeps notifications with a greater ID.
	SinceID int64

	OnlyUnread bool

	// Limit caps the result. Zero means no limit.
	Limit int
}

// Notifications returns the logged-in user's notifications.
func (f *Forum) Notifications(ctx context.Context, opts NotificationOptions) ([]Notification, error) {
	req := transport.Get("/notifications.json", nil)
	req.RequiresAuth = true

	var reply struct {
		Notifications []Notification `json:"notifications"`
	}
	if err := f.dispatch.DispatchJSON(ctx, req, &reply); err != nil {
		return nil, err
	}

	out := reply.Notifications[:0]
	for _, n := range reply.Notifications {
		if opts.SinceID > 0 && n.ID <= opts.SinceID {
			continue
		}
		if opts.OnlyUnread && n.Read {
			continue
		}
		out = append(out, n)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// BookmarkOptions are the optional bookmark fields.
type BookmarkOptions struct {
	Name         string
	ReminderType int
	ReminderAt   string

	// AutoDeletePreference defaults to 3 (clear after reminder).
	AutoDeletePreference int
}

// BookmarkPost bookmarks a post.
func (f *Forum) BookmarkPost(ctx context.Context, postID int64, opts BookmarkOptions) (*Bookmark, error) {
	if opts.AutoDeletePreference == 0 {
		opts.AutoDeletePreference = 3
	}
	form := url.Values{
		"bookmarkable_type":      {"Post"},
		"bookmarkable_id":        {strconv.FormatInt(postID, 10)},
		"auto_delete_preference": {strconv.Itoa(opts.AutoDeletePreference)},
	}
	if opts.Name != "" {
		form.Set("name", opts.Name)
	}
	if opts.ReminderType > 0 {
		form.Set("reminder_type", strconv.Itoa(opts.ReminderType))
	}
	if opts.ReminderAt != "" {
		form.Set("reminder_at", opts.ReminderAt)
	}

	req := transport.PostForm("/bookmarks.json", form)
	req.RequiresAuth = true
	req.Header = f.ajaxHeaders("/")

	var reply struct {
		ID int64 `json:"id"`
	}
	if err := f.dispatch.DispatchJSON(ctx, req, &reply); err != nil {
		return nil, err
	}
	return &Bookmark{
		ID:                   reply.ID,
		BookmarkableID:       postID,
		BookmarkableType:     "Post",
		Name:                 opts.Name,
		ReminderAt:           opts.ReminderAt,
		AutoDeletePreference: opts.AutoDeletePreference,
	}, nil
}

// SubscribeTopic sets the notification level of a topic.
func (f *Forum) SubscribeTopic(ctx context.Context, topicID int64, level NotificationLevel) (*SubscriptionResult, error) {
	if level < LevelMuted || level > LevelWatching {
		return nil, invalidArgument("notification level %d out of range", level)
	}
	path := fmt.Sprintf("/t/%d/notifications", topicID)
	req := transport.PostForm(path, url.Values{"notification_level": {strconv.Itoa(int(level))}})
	req.RequiresAuth = true
	req.Header = f.ajaxHeaders(fmt.Sprintf("/t/%d", topicID))

	if err := f.dispatch.DispatchJSON(ctx, req, nil); err != nil {
		return nil, err
	}
	return &SubscriptionResult{Success: true, NotificationLevel: level}, nil
}
