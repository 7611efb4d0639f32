// Package forum provides typed operations over a Discourse forum.
//
// Every operation goes through the access layer in pkg/client, so each
// request is rate limited, retried, challenge-aware and carries the current
// session's credentials. Multi-page reads use pkg/pagination.
//
// Example usage:
//
//	c, _ := client.New(client.DefaultConfig("https://www.uscardforum.com"))
//	f := forum.New(c, forum.Options{})
//
//	topics, err := f.HotTopics(ctx, 0)
//	posts, err := f.AllTopicPosts(ctx, topics[0].ID, forum.TopicPostsOptions{MaxPosts: 200})
//
// Operations that need an account (notifications, bookmarks, subscriptions)
// fail with apierror.ErrAuthenticationRequired before any request when the
// session is anonymous. CreateTopic and CreatePost additionally require
// Options.WriteEnabled.
package forum
