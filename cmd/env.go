package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/config"
	"github.com/sells-group/lead-harvest/internal/fetcher"
	"github.com/sells-group/lead-harvest/internal/locations"
	"github.com/sells-group/lead-harvest/internal/store"
)

const userAgent = "lead-harvest/1.0"

// initStore opens and migrates the configured run history store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// newResolver builds a location resolver over the configured city dataset.
func newResolver(c *config.Config) *locations.Resolver {
	return locations.NewResolver(&locations.Dataset{
		Path:     c.Locations.DatasetPath,
		URL:      c.Locations.DatasetURL,
		CacheDir: c.Locations.CacheDir,
		Fetcher:  fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: userAgent}),
	})
}

// addSelectorFlags registers the location selection flags on cmd.
func addSelectorFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("location", nil, `explicit location(s), e.g. "Springfield, IL" (repeatable)`)
	cmd.Flags().String("state", "", "state abbreviation or full name")
	cmd.Flags().Bool("all-states", false, "search cities in every state")
	cmd.Flags().Int("number", 0, "cities per state (default from config)")
	cmd.Flags().Int("min-population", 0, "minimum city population (default from config)")
}

// selectorFromFlags reads the selection flags, falling back to config for
// the per-state count and population floor.
func selectorFromFlags(cmd *cobra.Command, c *config.Config) locations.Selector {
	explicit, _ := cmd.Flags().GetStringSlice("location")
	state, _ := cmd.Flags().GetString("state")
	allStates, _ := cmd.Flags().GetBool("all-states")
	number, _ := cmd.Flags().GetInt("number")
	minPop, _ := cmd.Flags().GetInt("min-population")

	if number <= 0 {
		number = c.Locations.PerState
	}
	if minPop <= 0 {
		minPop = c.Locations.MinPopulation
	}
	return locations.Selector{
		Explicit:      explicit,
		State:         state,
		AllStates:     allStates,
		PerState:      number,
		MinPopulation: minPop,
	}
}
