package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sternrassler/forum-client/pkg/forum"
)

// Resource URIs.
const (
	CategoriesURI = "forum://categories"
	HotTopicsURI  = "forum://hot-topics"
	NewTopicsURI  = "forum://new-topics"
)

// resourceTopicLimit caps the topic lists served as resources.
const resourceTopicLimit = 20

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		CategoriesURI,
		"Forum categories",
		mcp.WithResourceDescription("Category ID to name mapping, including subcategories"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadCategories)

	s.mcpServer.AddResource(mcp.NewResource(
		HotTopicsURI,
		"Hot topics",
		mcp.WithResourceDescription("The 20 currently trending topics"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadHotTopics)

	s.mcpServer.AddResource(mcp.NewResource(
		NewTopicsURI,
		"New topics",
		mcp.WithResourceDescription("The 20 most recently active topics"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadNewTopics)
}

func (s *Server) handleReadCategories(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	m, err := s.forum.CategoryMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return jsonContents(request.Params.URI, m)
}

func (s *Server) handleReadHotTopics(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	topics, err := s.forum.HotTopics(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hot topics: %w", err)
	}
	return jsonContents(request.Params.URI, briefTopics(topics))
}

func (s *Server) handleReadNewTopics(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	topics, err := s.forum.NewTopics(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch new topics: %w", err)
	}
	return jsonContents(request.Params.URI, briefTopics(topics))
}

// topicBrief is the compact topic shape of the list resources.
type topicBrief struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	PostsCount int    `json:"posts_count"`
	Views      int    `json:"views,omitempty"`
	Category   string `json:"category,omitempty"`
}

func briefTopics(topics []forum.TopicSummary) []topicBrief {
	if len(topics) > resourceTopicLimit {
		topics = topics[:resourceTopicLimit]
	}
	out := make([]topicBrief, 0, len(topics))
	for _, t := range topics {
		out = append(out, topicBrief{
			ID:         t.ID,
			Title:      t.Title,
			PostsCount: t.PostsCount,
			Views:      t.Views,
			Category:   t.CategoryName,
		})
	}
	return out
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
