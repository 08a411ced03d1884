package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hkoeze/chekhov-examiner-2/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the examiner tools to an agent over MCP stdio",
	Long: `Runs a JSON-RPC stdio server exposing fetch_essay and fetch_questions.
Each call is forwarded to the HTTP service at EXAMINER_SERVER_URL with the
shared secret. Logs go to stderr; stdout carries the protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireSecret(); err != nil {
			return err
		}
		logger.Info("mcp adapter starting", zap.String("server_url", cfg.ServerURL))
		return mcp.NewServer(cfg.ServerURL, cfg.Secret, logger).Run(cmd.Context(), os.Stdin, os.Stdout)
	},
}
