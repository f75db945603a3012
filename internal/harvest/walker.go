package harvest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/pkg/google"
)

// Pagination defaults. The provider serves at most three pages per query and
// rejects a continuation token used before it becomes valid.
const (
	DefaultPageDelay = 2 * time.Second
	MinPageDelay     = 1 * time.Second
	DefaultMaxPages  = 3
)

// WalkState is the pagination state of one location.
type WalkState int

const (
	StateStart WalkState = iota
	StateFetchingPage
	StateHasNextPage
	StateDone
	StateFailed
)

func (s WalkState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateFetchingPage:
		return "fetching_page"
	case StateHasNextPage:
		return "has_next_page"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Walker yields the candidates of one location page by page. It is a finite,
// non-restartable sequence:
//
//	w := NewWalker(client, req, loc, phrase)
//	for w.Next(ctx) {
//		c := w.Candidate()
//	}
//	if err := w.Err(); err != nil { ... }
type Walker struct {
	client    google.Client
	requester *Requester
	location  Location
	phrase    string
	pageDelay time.Duration
	maxPages  int

	state   WalkState
	token   string
	pending []Candidate
	current Candidate
	pages   int
	err     error
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithPageDelay sets the delay between pages. The value is used as given,
// including zero.
func WithPageDelay(d time.Duration) WalkerOption {
	return func(w *Walker) {
		if d >= 0 {
			w.pageDelay = d
		}
	}
}

// WithMaxPages caps the number of pages fetched.
func WithMaxPages(n int) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.maxPages = n
		}
	}
}

// NewWalker creates a Walker for one location and search phrase.
func NewWalker(client google.Client, requester *Requester, loc Location, phrase string, opts ...WalkerOption) *Walker {
	w := &Walker{
		client:    client,
		requester: requester,
		location:  loc,
		phrase:    phrase,
		pageDelay: DefaultPageDelay,
		maxPages:  DefaultMaxPages,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Next advances to the next candidate, fetching pages as needed. It returns
// false once the walk is done or has failed.
func (w *Walker) Next(ctx context.Context) bool {
	for {
		if len(w.pending) > 0 {
			w.current = w.pending[0]
			w.pending = w.pending[1:]
			return true
		}

		switch w.state {
		case StateDone, StateFailed:
			return false
		case StateHasNextPage:
			if err := sleep(ctx, w.pageDelay); err != nil {
				w.fail(err)
				return false
			}
		}
		w.fetch(ctx)
	}
}

// Candidate returns the candidate produced by the last successful Next.
func (w *Walker) Candidate() Candidate { return w.current }

// Err returns the error that ended the walk, if any.
func (w *Walker) Err() error { return w.err }

// State returns the current pagination state.
func (w *Walker) State() WalkState { return w.state }

// Pages returns the number of pages fetched successfully.
func (w *Walker) Pages() int { return w.pages }

func (w *Walker) fetch(ctx context.Context) {
	w.state = StateFetchingPage
	req := google.TextSearchRequest{Query: w.phrase, PageToken: w.token}

	var resp *google.TextSearchResponse
	err := w.requester.Do(ctx, EndpointSearch, func(ctx context.Context) error {
		var err error
		resp, err = w.client.TextSearch(ctx, req)
		return err
	})
	if err != nil {
		w.fail(err)
		return
	}

	w.pages++
	for _, p := range resp.Results {
		w.pending = append(w.pending, candidateFromPlace(p, w.location))
	}

	if resp.NextPageToken != "" && w.pages < w.maxPages {
		w.token = resp.NextPageToken
		w.state = StateHasNextPage
		return
	}
	w.state = StateDone
}

func (w *Walker) fail(err error) {
	w.state = StateFailed
	w.err = err
	zap.L().Warn("search walk failed",
		zap.String("location", string(w.location)),
		zap.Int("pages", w.pages),
		zap.Error(err),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
