package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abhisek/alis/internal/logger"
	"github.com/abhisek/alis/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored tutoring sessions",
}

// withRuntime runs fn against a runtime with logging disabled.
func withRuntime(cmd *cobra.Command, fn func(rt *runtime) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := buildRuntime(cmd.Context(), cfg, logger.Nop())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently updated sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withRuntime(cmd, func(rt *runtime) error {
			sums, err := rt.dispatcher.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}

			rows := make([][]string, len(sums))
			for i, sum := range sums {
				rows[i] = []string{
					sum.Key,
					truncate(sum.GoalName, 32),
					string(sum.Phase),
					sum.ActiveConcept,
					sum.UpdatedAt.Local().Format(timeLayout),
				}
			}
			printTable([]string{"Key", "Goal", "Phase", "Active concept", "Updated"}, rows, false)
			return nil
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show a session's path and, optionally, its learning log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withLog, _ := cmd.Flags().GetBool("log")
		return withRuntime(cmd, func(rt *runtime) error {
			ctx := cmd.Context()
			out, err := rt.dispatcher.Get(ctx, args[0])
			if err != nil {
				return err
			}

			fields := [][]string{
				{"Phase", string(out.Phase)},
				{"Progress", fmt.Sprintf("%d/%d concepts", out.Progress.Resolved, out.Progress.Total)},
			}
			if out.Goal != nil {
				fields = append(fields, []string{"Goal", out.Goal.Name})
			}
			if out.FailedAttempts > 0 {
				fields = append(fields, []string{"Failed tests", strconv.Itoa(out.FailedAttempts)})
			}
			printTable([]string{out.SessionKey, ""}, fields, false)

			if len(out.Path) > 0 {
				rows := make([][]string, len(out.Path))
				for i, c := range out.Path {
					rows[i] = []string{strconv.Itoa(i + 1), c.Name, string(c.Status), string(c.Provenance)}
				}
				printTable([]string{"#", "Concept", "Status", "Provenance"}, rows, false)
			}

			if !withLog {
				return nil
			}
			entries, err := rt.dispatcher.Log(ctx, args[0], store.QueryOpts{})
			if err != nil {
				return err
			}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				score := ""
				if e.Score != nil {
					score = strconv.Itoa(*e.Score) + "%"
				}
				rows[i] = []string{
					strconv.FormatInt(e.Sequence, 10),
					e.Timestamp.Local().Format(timeLayout),
					e.Event,
					e.PhaseBefore + " → " + e.PhaseAfter,
					score,
				}
			}
			printTable([]string{"Seq", "Time", "Event", "Phase", "Score"}, rows, false)
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a session and its learning log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			if err := rt.dispatcher.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted session %s.\n", args[0])
			return nil
		})
	},
}

func init() {
	sessionsListCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
	sessionsShowCmd.Flags().Bool("log", false, "Print the learning log")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}
