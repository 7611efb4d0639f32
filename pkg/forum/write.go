package forum

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/forum-client/pkg/transport"
)

// NewTopic is the input of CreateTopic.
type NewTopic struct {
	Title      string   `json:"title"`
	Raw        string   `json:"raw"`
	CategoryID int64    `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// NewPost is the input of CreatePost.
type NewPost struct {
	TopicID           int64  `json:"topic_id"`
	Raw               string `json:"raw"`
	ReplyToPostNumber int    `json:"reply_to_post_number,omitempty"`
}

type createdReply struct {
	ID         int64  `json:"id"`
	PostNumber int    `json:"post_number"`
	TopicID    int64  `json:"topic_id"`
	TopicSlug  string `json:"topic_slug"`
}

// CreateTopic posts a new topic.
func (f *Forum) CreateTopic(ctx context.Context, t NewTopic) (*CreatedTopic, error) {
	if !f.opts.WriteEnabled {
		return nil, ErrWriteDisabled
	}
	if strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Raw) == "" {
		return nil, invalidArgument("title and raw are required")
	}

	var reply createdReply
	if err := f.post(ctx, t, "/", &reply); err != nil {
		return nil, err
	}
	pn := reply.PostNumber
	if pn == 0 {
		pn = 1
	}
	f.logger.Info().Int64("topic_id", reply.TopicID).Msg("Created topic")
	return &CreatedTopic{TopicID: reply.TopicID, TopicSlug: reply.TopicSlug, PostID: reply.ID, PostNumber: pn}, nil
}

// CreatePost replies in an existing topic.
func (f *Forum) CreatePost(ctx context.Context, p NewPost) (*CreatedPost, error) {
	if !f.opts.WriteEnabled {
		return nil, ErrWriteDisabled
	}
	if p.TopicID <= 0 || strings.TrimSpace(p.Raw) == "" {
		return nil, invalidArgument("topic id and raw are required")
	}

	var reply createdReply
	if err := f.post(ctx, p, fmt.Sprintf("/t/%d", p.TopicID), &reply); err != nil {
		return nil, err
	}
	f.logger.Info().Int64("topic_id", reply.TopicID).Int("post_number", reply.PostNumber).Msg("Created post")
	return &CreatedPost{PostID: reply.ID, PostNumber: reply.PostNumber, TopicID: reply.TopicID, TopicSlug: reply.TopicSlug}, nil
}

func (f *Forum) post(ctx context.Context, body any, referer string, out any) error {
	req, err := transport.PostJSON("/posts.json", body)
	if err != nil {
		return err
	}
	req.RequiresAuth = true
	req.Header = f.ajaxHeaders(referer)
	return f.dispatch.DispatchJSON(ctx, req, out)
}
