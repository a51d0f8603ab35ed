package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/workflows"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	runsFormat string
	runsLimit  int
	runsQuery  string
)

var runsCmd = &cobra.Command{
	Use:   "runs [owner/repo]",
	Short: "List workflow runs",
	Long: `List the latest runs of one repository, or with no argument the runs
cached by the dashboard for the signed-in user.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().StringVarP(&runsFormat, "format", "f", formatTable, "output format (table, json, yaml)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 30, "maximum number of runs")
	runsCmd.Flags().StringVarP(&runsQuery, "search", "s", "", "only runs matching name, repository or sha")
}

func runRuns(cmd *cobra.Command, args []string) error {
	switch runsFormat {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", runsFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var runs []github.WorkflowRun
	if len(args) == 1 {
		owner, repo, err := parseRepo(args[0])
		if err != nil {
			return err
		}
		if runs, err = c.ListRuns(ctx, owner, repo, runsLimit); err != nil {
			return err
		}
	} else {
		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		info, err := signIn(ctx, c, cache.NewUserCache(store, cfg.Client.Token), zap.NewNop())
		if err != nil {
			return err
		}
		snap, ok := cache.NewWorkflowCache(store, nil).Load(info.Username)
		if !ok {
			return fmt.Errorf("no cached runs for %s: open the dashboard first", info.Username)
		}
		col := workflows.NewCollection()
		col.Replace(snap.Data)
		runs = col.Snapshot()
	}

	runs = workflows.Filter{Query: runsQuery}.Apply(runs)
	if runsLimit > 0 && len(runs) > runsLimit {
		runs = runs[:runsLimit]
	}
	return writeRuns(cmd.OutOrStdout(), runs, runsFormat)
}

func parseRepo(s string) (string, string, error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q (want owner/repo)", s)
	}
	return owner, repo, nil
}

type runRow struct {
	ID         int64     `json:"id" yaml:"id"`
	Workflow   string    `json:"workflow" yaml:"workflow"`
	Number     int       `json:"number" yaml:"number"`
	Repository string    `json:"repository" yaml:"repository"`
	Branch     string    `json:"branch" yaml:"branch"`
	Commit     string    `json:"commit,omitempty" yaml:"commit,omitempty"`
	Event      string    `json:"event" yaml:"event"`
	Status     string    `json:"status" yaml:"status"`
	Conclusion string    `json:"conclusion,omitempty" yaml:"conclusion,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt" yaml:"updated_at"`
	URL        string    `json:"url" yaml:"url"`
}

func toRows(runs []github.WorkflowRun) []runRow {
	rows := make([]runRow, len(runs))
	for i, r := range runs {
		rows[i] = runRow{
			ID:         r.ID,
			Workflow:   r.Name,
			Number:     r.RunNumber,
			Repository: r.Repository.FullName,
			Branch:     r.Branch,
			Commit:     r.ShortSHA(),
			Event:      r.Event,
			Status:     r.Status,
			Conclusion: r.Conclusion,
			UpdatedAt:  r.UpdatedAt,
			URL:        r.HTMLURL,
		}
	}
	return rows
}

func writeRuns(w io.Writer, runs []github.WorkflowRun, format string) error {
	rows := toRows(runs)
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No workflow runs found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tREPOSITORY\tBRANCH\tCOMMIT\tSTATUS\tUPDATED")
	for _, r := range rows {
		status := r.Status
		if r.Conclusion != "" {
			status = r.Conclusion
		}
		fmt.Fprintf(tw, "%d\t%s #%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Workflow, r.Number, r.Repository, r.Branch, r.Commit, status, r.UpdatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}
