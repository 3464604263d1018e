package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/alis/internal/llm"
	"github.com/abhisek/alis/internal/store"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded LLM requests",
}

// openEventStore opens the database without building a provider, so
// events stay readable when the LLM configuration is broken.
func openEventStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	s, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")
		sessionKey, _ := cmd.Flags().GetString("session")

		s, err := openEventStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.EventRepo().QueryLLMEvents(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		var rows [][]string
		for _, e := range events {
			if purpose != "" && e.Purpose != purpose {
				continue
			}
			if sessionKey != "" && e.SessionKey != sessionKey {
				continue
			}
			ok := "✓"
			if !e.Success {
				ok = "✗"
			}
			rows = append(rows, []string{
				strconv.FormatInt(e.ID, 10),
				e.Timestamp.Local().Format(timeLayout),
				truncate(e.SessionKey, 8),
				e.Purpose,
				truncate(e.Model, 28),
				strconv.Itoa(e.InputTokens),
				strconv.Itoa(e.OutputTokens),
				strconv.FormatInt(e.LatencyMs, 10),
				ok,
			})
		}
		if len(rows) == 0 {
			fmt.Println("No LLM requests recorded.")
			return nil
		}
		printTable([]string{"ID", "Time", "Session", "Purpose", "Model", "In", "Out", "Ms", "OK"}, rows, false)
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the full request and response of one LLM call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}

		s, err := openEventStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.EventRepo().GetLLMEvent(cmd.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("LLM request %d not found", id)
		}
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}

		fields := [][]string{
			{"Time", e.Timestamp.Local().Format(timeLayout)},
			{"Session", e.SessionKey},
			{"Provider", e.Provider},
			{"Model", e.Model},
			{"Purpose", e.Purpose},
			{"Tokens", fmt.Sprintf("%d in / %d out", e.InputTokens, e.OutputTokens)},
			{"Latency", fmt.Sprintf("%dms", e.LatencyMs)},
			{"Success", strconv.FormatBool(e.Success)},
		}
		if e.ErrorMessage != "" {
			fields = append(fields, []string{"Error", e.ErrorMessage})
		}
		printTable([]string{"#" + args[0], ""}, fields, false)

		section := func(title, body string) {
			fmt.Println(headerStyle.Render(title))
			if body == "" {
				body = "(not captured)"
			}
			fmt.Println(body)
			fmt.Println()
		}
		section("Request", e.RequestBody)
		section("Response", e.ResponseBody)
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage per purpose and estimated cost per model",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEventStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		byPurpose, err := s.EventRepo().LLMUsageByPurpose(ctx)
		if err != nil {
			return fmt.Errorf("query usage: %w", err)
		}
		if len(byPurpose) == 0 {
			fmt.Println("No LLM usage recorded yet.")
			return nil
		}

		var calls, in, out int
		rows := make([][]string, 0, len(byPurpose)+1)
		for _, u := range byPurpose {
			rows = append(rows, []string{
				u.Purpose,
				strconv.Itoa(u.Calls),
				strconv.Itoa(u.InputTokens),
				strconv.Itoa(u.OutputTokens),
				strconv.FormatInt(u.AvgLatencyMs, 10),
			})
			calls += u.Calls
			in += u.InputTokens
			out += u.OutputTokens
		}
		rows = append(rows, []string{"total", strconv.Itoa(calls), strconv.Itoa(in), strconv.Itoa(out), ""})
		printTable([]string{"Purpose", "Calls", "Input", "Output", "Avg ms"}, rows, true)

		byModel, err := s.EventRepo().LLMUsageByModel(ctx)
		if err != nil {
			return fmt.Errorf("query model usage: %w", err)
		}
		if len(byModel) == 0 {
			return nil
		}

		var total float64
		var unpriced []string
		rows = rows[:0]
		for _, u := range byModel {
			cost := "?"
			if c := llm.LookupCost(u.Model); c != nil {
				usd := c.Cost(u.InputTokens, u.OutputTokens)
				total += usd
				cost = formatCost(usd)
			} else {
				unpriced = append(unpriced, u.Model)
			}
			rows = append(rows, []string{truncate(u.Model, 32), strconv.Itoa(u.Calls), cost})
		}
		label := "total"
		if len(unpriced) > 0 {
			label = "total (partial)"
		}
		rows = append(rows, []string{label, "", formatCost(total)})
		printTable([]string{"Model", "Calls", "Cost (USD)"}, rows, true)

		if len(unpriced) > 0 {
			fmt.Printf("Pricing unavailable for: %s\n", strings.Join(unpriced, ", "))
		}
		return nil
	},
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of requests to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (e.g. architect-plan, curator-test, tutor-reply)")
	llmListCmd.Flags().String("session", "", "Filter by session key")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
