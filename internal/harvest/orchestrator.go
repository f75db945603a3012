package harvest

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/pkg/google"
)

// DefaultMaxConcurrency is the default number of concurrent location tasks.
const DefaultMaxConcurrency = 10

// Config holds the run parameters for an Orchestrator. PageDelay is used as
// given; callers clamp user input before building a Config.
type Config struct {
	MaxConcurrency int
	PageDelay      time.Duration
	MaxPages       int
	Prescreen      bool
	DetailFields   []string
	Rules          Rules
}

// Orchestrator runs one task per location on a bounded worker pool and
// merges the per-location results.
type Orchestrator struct {
	client    google.Client
	requester *Requester
	cfg       Config
	metrics   *metrics.Metrics
	progress  func(LocationReport)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithProgress registers fn to receive a report as each location finishes.
// Calls are serialized.
func WithProgress(fn func(LocationReport)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithRunMetrics records candidate, location and page counts in m.
func WithRunMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an Orchestrator. Every location shares client and
// requester, so all calls pass through the same rate limiter.
func NewOrchestrator(client google.Client, requester *Requester, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	o := &Orchestrator{
		client:    client,
		requester: requester,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// locationResult is the buffer one task fills before merging.
type locationResult struct {
	accepted []Lead
	rejected []RejectedLead
	report   LocationReport
}

// Run processes every location and returns the merged result. A failed
// location is recorded in its report and never stops other locations. Run
// returns an error only when ctx is cancelled, in which case the partial
// result must not be published.
func (o *Orchestrator) Run(ctx context.Context, locations []Location, q Query) (*Result, error) {
	started := time.Now()

	rules := o.cfg.Rules
	rules.Keywords = append(append([]string(nil), rules.Keywords...), q.Keywords...)
	classifier := NewClassifier(rules, NewRegistry())
	enricher := NewEnricher(o.client, o.requester, o.cfg.DetailFields)

	zap.L().Info("starting harvest",
		zap.Int("locations", len(locations)),
		zap.String("query", q.Text),
		zap.Strings("keywords", rules.Keywords),
		zap.Int("concurrency", o.cfg.MaxConcurrency),
	)

	res := &Result{Query: q, Started: started}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrency)

	for _, loc := range locations {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			lr := o.runLocation(ctx, loc, q, classifier, enricher)

			mu.Lock()
			defer mu.Unlock()
			res.Accepted = append(res.Accepted, lr.accepted...)
			res.Rejected = append(res.Rejected, lr.rejected...)
			res.Locations = append(res.Locations, lr.report)
			if o.progress != nil {
				o.progress(lr.report)
			}
			// Location failures are reported, not propagated.
			return nil
		})
	}
	_ = g.Wait()

	res.Elapsed = time.Since(started)
	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "harvest: run cancelled")
	}

	zap.L().Info("harvest complete",
		zap.Int("accepted", len(res.Accepted)),
		zap.Int("rejected", len(res.Rejected)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (o *Orchestrator) runLocation(ctx context.Context, loc Location, q Query, classifier *Classifier, enricher *Enricher) locationResult {
	start := time.Now()
	log := zap.L().With(zap.String("location", string(loc)))

	w := NewWalker(o.client, o.requester, loc, q.For(loc),
		WithPageDelay(o.cfg.PageDelay),
		WithMaxPages(o.cfg.MaxPages),
	)

	var lr locationResult
	record := func(out Outcome) {
		if out.IsAccepted() {
			lr.accepted = append(lr.accepted, *out.Accepted)
			o.metrics.ObserveCandidate("accepted", "")
			return
		}
		lr.rejected = append(lr.rejected, *out.Rejected)
		if out.Rejected.Reason == ReasonDuplicate {
			lr.report.Duplicates++
		}
		o.metrics.ObserveCandidate("rejected", string(out.Rejected.Reason))
	}

	for w.Next(ctx) {
		cand := w.Candidate()
		lr.report.Observed++

		if o.cfg.Prescreen {
			if out, rejected := classifier.Prescreen(cand); rejected {
				record(out)
				continue
			}
		}

		ec := enricher.Enrich(ctx, cand)
		if ec.Enrichment.Degraded {
			lr.report.Degraded++
		}
		record(classifier.Classify(ec))
	}

	lr.report.Location = loc
	lr.report.Accepted = len(lr.accepted)
	lr.report.Rejected = len(lr.rejected)
	lr.report.Pages = w.Pages()
	lr.report.Err = w.Err()
	lr.report.Duration = time.Since(start)

	o.metrics.AddPages(lr.report.Pages)
	if lr.report.Failed() {
		o.metrics.ObserveLocation("failed")
		log.Warn("location finished with error",
			zap.Int("observed", lr.report.Observed),
			zap.Int("pages", lr.report.Pages),
			zap.Error(lr.report.Err),
		)
	} else {
		o.metrics.ObserveLocation("ok")
		log.Debug("location finished",
			zap.Int("observed", lr.report.Observed),
			zap.Int("accepted", lr.report.Accepted),
			zap.Int("pages", lr.report.Pages),
		)
	}
	return lr
}
