package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/config"
	"github.com/sells-group/lead-harvest/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect harvest run history",
	Long:  "Commands for listing runs, viewing one run and listing the leads it produced.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate(config.ModeRuns)
	},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List harvest runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{Status: store.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs leads --

var runsLeadsCmd = &cobra.Command{
	Use:   "leads <run-id>",
	Short: "List the leads a run produced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		outcome, _ := cmd.Flags().GetString("outcome")
		limit, _ := cmd.Flags().GetInt("limit")

		leads, err := st.ListLeads(ctx, store.LeadFilter{RunID: args[0], Outcome: outcome, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs leads")
		}

		formatLeadsList(cmd.OutOrStdout(), leads)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed, cancelled)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsLeadsCmd.Flags().String("outcome", "", "filter by outcome (accepted, rejected)")
	runsLeadsCmd.Flags().Int("limit", 100, "max number of leads to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsLeadsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a table of runs to w.
func formatRunsList(w io.Writer, runs []store.Run) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		accepted, rejected := "", ""
		if r.Stats != nil {
			accepted = strconv.Itoa(r.Stats.Accepted)
			rejected = strconv.Itoa(r.Stats.Rejected)
		}
		rows = append(rows, []string{
			truncateID(r.ID),
			truncate(r.Query, 30),
			string(r.Status),
			strconv.Itoa(r.Locations),
			accepted,
			rejected,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		})
	}
	_, _ = fmt.Fprintln(w, renderTable(
		[]string{"ID", "QUERY", "STATUS", "LOCATIONS", "ACCEPTED", "REJECTED", "CREATED", "DURATION"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight},
	))
}

// formatLeadsList writes a table of leads to w.
func formatLeadsList(w io.Writer, leads []store.LeadRecord) {
	rows := make([][]string, 0, len(leads))
	for _, l := range leads {
		rating := ""
		if l.Rating != nil {
			rating = strconv.FormatFloat(*l.Rating, 'f', 1, 64)
		}
		rows = append(rows, []string{
			truncate(l.Name, 40),
			l.Phone,
			truncate(l.Website, 40),
			l.Location,
			rating,
			l.Outcome,
			l.Reason,
		})
	}
	_, _ = fmt.Fprintln(w, renderTable(
		[]string{"NAME", "PHONE", "WEBSITE", "LOCATION", "RATING", "OUTCOME", "REASON"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
