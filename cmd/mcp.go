package cmd

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/abhisek/alis/internal/logger"
	"github.com/abhisek/alis/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve tutoring sessions as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		// stdout carries the protocol; logs go to ALIS_LOG_FILE only.
		log := logger.Nop()
		if cfg.LogPath != "" {
			if log, err = logger.New(cfg.LogMode, cfg.LogPath); err != nil {
				return err
			}
			defer log.Sync()
		}

		rt, err := buildRuntime(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		return server.ServeStdio(tools.NewServer(rt.dispatcher, resolvedVersion()))
	},
}
