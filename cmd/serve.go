package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/alis/internal/logger"
	"github.com/abhisek/alis/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tutoring sessions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log, err := logger.New(cfg.LogMode, cfg.LogPath)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := buildRuntime(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := server.New(rt.dispatcher, log, server.Options{
			Addr:        cfg.Addr,
			CORSOrigins: cfg.CORSOrigins,
		})
		log.Info("listening", "addr", cfg.Addr)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides ALIS_ADDR env var)")
}
