package main

import (
	"fmt"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/claude/physiotrack/internal/mcp"
)

func mcpCmd() *cobra.Command {
	var (
		remoteURL string
		apiKey    string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP over stdio for a running session",
		Long: `Serve the session tools over stdio, forwarding each call to the control
API of a running "physiotrack run" (for example over Tailscale).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remoteURL == "" {
				return fmt.Errorf("--remote is required")
			}
			if apiKey == "" {
				apiKey = os.Getenv("PHYSIOTRACK_API_KEY")
			}
			// stdout carries the protocol
			log := newLogger(os.Stderr)
			s := mcp.New(mcp.NewHTTPClient(remoteURL, apiKey), Version, log)
			return mcpserver.ServeStdio(s)
		},
	}

	cmd.Flags().StringVar(&remoteURL, "remote", "", "base URL of the running session's control API")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "control API key (defaults to PHYSIOTRACK_API_KEY)")
	return cmd
}
