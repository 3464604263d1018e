package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abhisek/alis/internal/config"
	"github.com/abhisek/alis/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "alis",
	Short: "Adaptive tutor that walks a learner through a concept path",
	Long:  "ALIS sets a learning goal, plans a path of concepts, teaches and tests each one, and repairs gaps as they show up.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd, "")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides ALIS_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overrides ALIS_CONFIG env var)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and ALIS_* variables, then applies
// flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return config.Config{}, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DBPath = p
	}
	if cmd.Flags().Lookup("addr") != nil {
		if a, _ := cmd.Flags().GetString("addr"); a != "" {
			cfg.Addr = a
		}
	}
	return cfg, nil
}

// openStore opens the database named by --db, then ALIS_DB, then the
// default XDG path.
func openStore(cfg config.Config) (*store.Store, error) {
	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	if err := store.EnsureDir(dbPath); err != nil {
		return nil, err
	}
	return store.Open(dbPath)
}
