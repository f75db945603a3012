package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/config"
	"github.com/sells-group/lead-harvest/internal/enhance"
	"github.com/sells-group/lead-harvest/internal/harvest"
	"github.com/sells-group/lead-harvest/internal/locations"
	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/ratelimit"
	"github.com/sells-group/lead-harvest/internal/sink"
	"github.com/sells-group/lead-harvest/internal/store"
	"github.com/sells-group/lead-harvest/pkg/anthropic"
	"github.com/sells-group/lead-harvest/pkg/google"
	"github.com/sells-group/lead-harvest/pkg/notion"
)

// notionRateLimit keeps page creation under Notion's published limit.
const notionRateLimit = 3

var harvestCmd = &cobra.Command{
	Use:   "harvest <business type>",
	Short: "Harvest leads for a business type across locations",
	Long: `Searches every selected location for the business type, enriches each
result with its phone number and website, screens out excluded chains,
closed businesses, off-topic names, unreachable businesses and duplicates,
and writes the accepted and rejected leads to the configured outputs.`,
	Example: `  lead-harvest harvest "roofing contractor" --state IL --number 20
  lead-harvest harvest "landscape lighting" --location "Springfield, IL" --location "Peoria, IL"
  lead-harvest harvest plumber --all-states --number 5 --keywords drain,pipe`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		keywords, _ := cmd.Flags().GetStringSlice("keywords")
		noEnhance, _ := cmd.Flags().GetBool("no-enhance")
		noStore, _ := cmd.Flags().GetBool("no-store")
		if prescreen, _ := cmd.Flags().GetBool("prescreen"); prescreen {
			cfg.Harvest.Prescreen = true
		}

		if err := cfg.Validate(config.ModeHarvest); err != nil {
			return err
		}

		req := harvestRequest{
			BusinessType: strings.Join(args, " "),
			Selector:     selectorFromFlags(cmd, cfg),
			Keywords:     keywords,
			NoEnhance:    noEnhance,
			NoStore:      noStore,
		}
		return runHarvest(ctx, cfg, req, cmd.OutOrStdout())
	},
}

func init() {
	addSelectorFlags(harvestCmd)
	harvestCmd.Flags().StringSlice("keywords", nil, "additional classification keywords (comma-separated)")
	harvestCmd.Flags().Bool("no-enhance", false, "skip query enhancement and use the business type as given")
	harvestCmd.Flags().Bool("prescreen", false, "reject by search fields before the details lookup")
	harvestCmd.Flags().Bool("no-store", false, "do not record the run in the run history store")
	rootCmd.AddCommand(harvestCmd)
}

// harvestRequest is the validated input of one harvest run.
type harvestRequest struct {
	BusinessType string
	Selector     locations.Selector
	Keywords     []string
	NoEnhance    bool
	NoStore      bool
}

// harvestDeps are the collaborators of a run. Nil fields are built from
// config.
type harvestDeps struct {
	Resolver *locations.Resolver
	Enhancer *enhance.Enhancer
	Places   google.Client
	Sink     sink.Sink
	Store    store.Store
	Registry *prometheus.Registry
}

func runHarvest(ctx context.Context, c *config.Config, req harvestRequest, out io.Writer) error {
	// The business type doubles as the classification keyword when the
	// query is not enhanced, so it must not be blank.
	if strings.TrimSpace(req.BusinessType) == "" {
		return eris.New("harvest: business type is required")
	}
	deps, closeFn, err := buildHarvestDeps(ctx, c, req)
	if err != nil {
		return err
	}
	defer closeFn()
	return executeHarvest(ctx, c, req, deps, out)
}

func buildHarvestDeps(ctx context.Context, c *config.Config, req harvestRequest) (harvestDeps, func(), error) {
	deps := harvestDeps{
		Resolver: newResolver(c),
		Places: google.NewClient(c.Google.Key,
			google.WithBaseURL(c.Google.BaseURL),
			google.WithHTTPClient(&http.Client{Timeout: googleTimeout(c)}),
		),
		Registry: prometheus.NewRegistry(),
	}
	if !req.NoEnhance && c.Anthropic.Key != "" {
		deps.Enhancer = enhance.New(anthropic.NewClient(c.Anthropic.Key), c.Anthropic.Model, c.Anthropic.MaxTokens)
	}

	sinks, err := sink.FileSinks(c.Output.Dir, c.Output.Formats)
	if err != nil {
		return deps, nil, err
	}
	if c.Notion.Token != "" {
		nc := notion.NewClient(c.Notion.Token, notion.WithRateLimit(notionRateLimit))
		sinks = append(sinks, sink.NewNotion(nc, c.Notion.LeadDB))
	}
	deps.Sink = sink.Multi(sinks)

	closeFn := func() {}
	if !req.NoStore {
		st, err := initStore(ctx, c)
		if err != nil {
			return deps, nil, eris.Wrap(err, "harvest: open run store")
		}
		deps.Store = st
		closeFn = func() { st.Close() } //nolint:errcheck
	}
	return deps, closeFn, nil
}

func googleTimeout(c *config.Config) time.Duration {
	if c.Google.TimeoutSecs <= 0 {
		return harvest.DefaultCallTimeout
	}
	return time.Duration(c.Google.TimeoutSecs) * time.Second
}

func executeHarvest(ctx context.Context, c *config.Config, req harvestRequest, deps harvestDeps, out io.Writer) error {
	locs, err := deps.Resolver.Resolve(ctx, req.Selector)
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		return eris.New("harvest: no locations selected")
	}

	rules, err := c.Harvest.LoadRules()
	if err != nil {
		return err
	}
	q := deps.Enhancer.Resolve(ctx, req.BusinessType, req.Keywords)

	limiter, err := ratelimit.New(ratelimit.Mode(c.Harvest.LimiterMode), c.Harvest.RequestsPerSecond)
	if err != nil {
		return err
	}
	m := metrics.New(deps.Registry)
	m.TrackLimiterDelays(limiter.Delayed)
	stopMetrics := serveMetrics(c.Metrics.Addr, deps.Registry)
	defer stopMetrics()

	requester := harvest.NewRequester(limiter, c.Harvest.Retry(),
		harvest.WithMetrics(m),
		harvest.WithCallTimeout(googleTimeout(c)),
	)

	var run *store.Run
	if deps.Store != nil {
		run, err = deps.Store.CreateRun(ctx, store.NewRun{Query: q.Text, Keywords: q.Keywords, Locations: len(locs)})
		if err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintf(out, "Searching for: %s\n", q.Text)
	_, _ = fmt.Fprintf(out, "Keywords: %s\n", strings.Join(q.Keywords, ", "))
	_, _ = fmt.Fprintf(out, "Locations: %d\n\n", len(locs))

	printer := newProgressPrinter(out, len(locs), isTerminal(out))
	printer.header()

	orch := harvest.NewOrchestrator(deps.Places, requester, c.Harvest.RunConfig(rules),
		harvest.WithProgress(printer.report),
		harvest.WithRunMetrics(m),
	)
	res, err := orch.Run(ctx, locs, q)
	if err != nil {
		finishRun(ctx, deps.Store, run, store.RunStatusCancelled, nil, err)
		return err
	}

	stats := harvest.Summarize(res)
	if err := stats.Verify(); err != nil {
		finishRun(ctx, deps.Store, run, store.RunStatusFailed, &stats, err)
		return err
	}

	dests, err := harvest.NewReporter(deps.Sink).Publish(ctx, res)
	if err != nil {
		finishRun(ctx, deps.Store, run, store.RunStatusFailed, &stats, err)
		return err
	}

	if run != nil {
		n, err := deps.Store.SaveLeads(ctx, store.LeadRecords(run.ID, res))
		if err != nil {
			finishRun(ctx, deps.Store, run, store.RunStatusFailed, &stats, err)
			return err
		}
		zap.L().Debug("saved leads", zap.String("run_id", run.ID), zap.Int64("rows", n))
	}
	finishRun(ctx, deps.Store, run, store.RunStatusComplete, &stats, nil)

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, renderSummary(stats, dests))
	return nil
}

// finishRun records the final state of a run. It survives cancellation of
// ctx so that interrupted runs are still marked.
func finishRun(ctx context.Context, st store.Store, run *store.Run, status store.RunStatus, stats *harvest.RunStatistics, runErr error) {
	if st == nil || run == nil {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := st.CompleteRun(context.WithoutCancel(ctx), run.ID, status, stats, msg); err != nil {
		zap.L().Warn("failed to record run outcome", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// serveMetrics exposes reg on addr until the returned func is called. An
// empty addr disables the listener.
func serveMetrics(addr string, reg prometheus.Gatherer) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		zap.L().Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Warn("metrics listener stopped", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
