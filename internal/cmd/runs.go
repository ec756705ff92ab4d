package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/absenteeism-ml/absdeploy/pkg/runregistry"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past deployment runs",
	Long: `Inspect records of past deployment runs.

Every deploy writes a durable run record with its stage outcomes, so failures
can be examined after the console output is gone. A record still marked
running whose process has exited is reported as failed.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployment runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show one deployment run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().Bool("json", false, "Output as JSON")
	runsShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func runsStore(cmd *cobra.Command) (*runregistry.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return runregistry.NewStore(cfg.Paths.RegistryDir), nil
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := runsStore(cmd)
	if err != nil {
		return err
	}
	runs, err := store.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No runs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "RUN ID\tMODE\tSTATE\tSTARTED\tENDED\tSTAGES")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortRunID(r.RunID),
			r.Mode,
			r.State,
			formatOptionalTime(r.StartedAt),
			formatOptionalTime(r.EndedAt),
			summarizeStages(r.Stages),
		)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := runsStore(cmd)
	if err != nil {
		return err
	}
	runID, err := resolveRunID(store, args[0])
	if err != nil {
		return err
	}
	rec, err := store.Get(runID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(os.Stdout, "run_id=%s\n", rec.RunID)
	_, _ = fmt.Fprintf(os.Stdout, "mode=%s\n", rec.Mode)
	_, _ = fmt.Fprintf(os.Stdout, "state=%s\n", rec.State)
	if rec.Host != "" {
		_, _ = fmt.Fprintf(os.Stdout, "host=%s\n", rec.Host)
	}
	if rec.StartedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "started_at=%s\n", rec.StartedAt.UTC().Format(time.RFC3339))
	}
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	if rec.Error != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error=%s\n", rec.Error)
	}
	for _, stage := range rec.Stages {
		line := fmt.Sprintf("stage %s: %s (%s)", stage.Name, stage.Outcome, stage.Duration.Round(time.Millisecond))
		if stage.Detail != "" {
			line += " " + stage.Detail
		}
		_, _ = fmt.Fprintln(os.Stdout, line)
	}
	return nil
}

func shortRunID(runID string) string {
	runID = strings.TrimSpace(runID)
	if len(runID) <= 8 {
		return runID
	}
	return runID[:8]
}

func summarizeStages(stages []runregistry.StageResult) string {
	if len(stages) == 0 {
		return "-"
	}
	var ran, skipped, failed int
	for _, s := range stages {
		switch s.Outcome {
		case "skipped":
			skipped++
		case "failed":
			failed++
		default:
			ran++
		}
	}
	parts := []string{fmt.Sprintf("%d run", ran)}
	if skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", skipped))
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	return strings.Join(parts, ", ")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func resolveRunID(store *runregistry.Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("run_id is required")
	}

	// Exact match first.
	if _, err := store.Get(input); err == nil {
		return input, nil
	}

	// Prefix match (allows table-friendly short IDs).
	runs, err := store.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, r := range runs {
		if strings.HasPrefix(r.RunID, input) {
			matches = append(matches, r.RunID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("run not found: %s", input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("run id prefix is ambiguous (%d matches); use the full run_id", len(matches))
	}
	return matches[0], nil
}
