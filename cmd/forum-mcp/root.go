package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "forum-mcp",
	Short: "MCP server for a Discourse forum",
	Long: `forum-mcp exposes a Discourse forum to MCP clients: topic discovery,
search, topic reading with pagination, user profiles and, with a login,
notifications, bookmarks and subscriptions.

Configuration comes from an optional YAML file and the environment
(USCARDFORUM_URL, NITAN_USERNAME, NITAN_PASSWORD, NITAN_API_KEY, MCP_TRANSPORT,
REDIS_URL and FORUM_* for everything else).`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "forum-mcp %s (commit %s, %s)\n", version, commit, runtime.Version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
