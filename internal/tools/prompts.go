package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// promptSpec describes one templated prompt.
type promptSpec struct {
	name        string
	description string
	args        []promptArg
	render      func(args map[string]string) string
}

type promptArg struct {
	name        string
	description string
}

var prompts = []promptSpec{
	{
		name:        "research_topic",
		description: "Research what the community says about a subject",
		args:        []promptArg{{"topic_query", "Subject to research, e.g. \"Chase Sapphire Reserve\""}},
		render: func(a map[string]string) string {
			return fmt.Sprintf(`Research what the forum says about %q.

1. Use search_forum to find relevant discussions, trying a few phrasings.
2. Open the most relevant topics with get_topic_info and get_all_topic_posts.
3. Summarize:
   - the main points and the consensus, if any
   - useful tips and recent data points
   - warnings and disagreements

Cite topic IDs and post numbers for every claim.`, a["topic_query"])
		},
	},
	{
		name:        "analyze_user",
		description: "Profile a forum member's activity and reputation",
		args:        []promptArg{{"username", "User handle to analyze"}},
		render: func(a map[string]string) string {
			return fmt.Sprintf(`Analyze the forum user %q.

1. Read get_user_summary and get_user_badges.
2. Look at recent contributions with get_user_topics and get_user_replies.
3. Report:
   - activity level and tenure
   - subjects the user writes about most
   - how the community responds (likes, badges)
   - whether the user's data points look reliable`, a["username"])
		},
	},
	{
		name:        "find_data_points",
		description: "Collect user-reported data points on a subject",
		args:        []promptArg{{"subject", "Subject to collect data points on, e.g. \"Chase 5/24\""}},
		render: func(a map[string]string) string {
			return fmt.Sprintf(`Collect community data points about %q.

1. Search for discussions mentioning %q, ordered by latest.
2. Keep posts where members report their own experience, favoring the last 3 to 6 months.
3. For each data point extract:
   - what happened (approval, denial, bonus, shutdown)
   - the relevant details (dates, amounts, circumstances)
   - the member's profile if mentioned
   - the source topic ID and post number

Finish with the patterns and trends the data shows.`, a["subject"], a["subject"])
		},
	},
	{
		name:        "compare_cards",
		description: "Compare community opinion on two credit cards",
		args: []promptArg{
			{"card1", "First card, e.g. \"Chase Sapphire Reserve\""},
			{"card2", "Second card, e.g. \"Amex Platinum\""},
		},
		render: func(a map[string]string) string {
			return fmt.Sprintf(`Compare how the forum discusses %q and %q.

1. Search discussions for each card separately.
2. Gather pros and cons from community feedback.
3. Compare sign-up bonus and requirements, annual fee and benefits, point value and redemption, and how often members recommend each.

Conclude with which kind of member each card suits, which one the community prefers and why, and what application strategy to keep in mind.`, a["card1"], a["card2"])
		},
	},
}

func (s *Server) registerPrompts() {
	for _, p := range prompts {
		opts := []mcp.PromptOption{mcp.WithPromptDescription(p.description)}
		for _, a := range p.args {
			opts = append(opts, mcp.WithArgument(a.name,
				mcp.ArgumentDescription(a.description),
				mcp.RequiredArgument(),
			))
		}
		s.mcpServer.AddPrompt(mcp.NewPrompt(p.name, opts...), promptHandler(p))
	}
}

func promptHandler(p promptSpec) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := request.Params.Arguments
		for _, a := range p.args {
			if strings.TrimSpace(args[a.name]) == "" {
				return nil, fmt.Errorf("prompt %s: argument %s is required", p.name, a.name)
			}
		}
		return mcp.NewGetPromptResult(
			p.description,
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(p.render(args))),
			},
		), nil
	}
}
