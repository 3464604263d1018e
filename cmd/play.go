package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/alis/internal/app"
	"github.com/abhisek/alis/internal/logger"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start or resume a tutoring session in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("session")
		return runPlay(cmd, key)
	},
}

func init() {
	playCmd.Flags().StringP("session", "s", "", "Session key to resume (a new one is generated when empty)")
}

// runPlay launches the terminal client against a local dispatcher. Logs
// go to ALIS_LOG_FILE only, since stderr belongs to the TUI.
func runPlay(cmd *cobra.Command, key string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
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

	if key == "" {
		key = uuid.NewString()
	}
	return app.Run(app.Options{Client: rt.dispatcher, SessionKey: key})
}
