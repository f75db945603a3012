// Package locations turns a location selector into the ordered list of
// "City, ST" locations a run searches.
package locations

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/harvest"
)

// Defaults for city selection.
const (
	DefaultPerState      = 100
	DefaultMinPopulation = 10000
)

// Selector chooses locations. Explicit wins over State, which wins over
// AllStates. An empty selector means all states.
type Selector struct {
	Explicit      []string
	State         string
	AllStates     bool
	PerState      int
	MinPopulation int
}

// CityLoader supplies the city dataset.
type CityLoader interface {
	Load(ctx context.Context) ([]City, error)
}

// Resolver resolves selectors against a city dataset. The dataset is only
// loaded when a selector needs it.
type Resolver struct {
	loader CityLoader
}

// NewResolver creates a Resolver backed by loader.
func NewResolver(loader CityLoader) *Resolver {
	return &Resolver{loader: loader}
}

// Resolve returns the deduplicated, ordered locations for sel. An unknown
// state is an error.
func (r *Resolver) Resolve(ctx context.Context, sel Selector) ([]harvest.Location, error) {
	if len(sel.Explicit) > 0 {
		return dedup(sel.Explicit), nil
	}

	states := States
	if sel.State != "" && !sel.AllStates {
		st, ok := LookupState(sel.State)
		if !ok {
			return nil, eris.Errorf("locations: invalid state %q", sel.State)
		}
		states = []State{st}
	}

	cities, err := r.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, st := range states {
		for _, loc := range SelectCities(cities, st, sel.PerState, sel.MinPopulation) {
			names = append(names, string(loc))
		}
	}
	return dedup(names), nil
}

// SelectCities picks the most populous cities of st at or above minPop,
// with the capital first when it would otherwise be missing, capped at
// perState.
func SelectCities(cities []City, st State, perState, minPop int) []harvest.Location {
	if perState <= 0 {
		perState = DefaultPerState
	}

	var inState []City
	for _, c := range cities {
		if c.State == st.Abbr && c.Population >= minPop {
			inState = append(inState, c)
		}
	}
	slices.SortStableFunc(inState, func(a, b City) int {
		return cmp.Compare(b.Population, a.Population)
	})

	out := make([]harvest.Location, 0, min(len(inState), perState)+1)
	for _, c := range inState[:min(len(inState), perState)] {
		out = append(out, format(c.Name, st.Abbr))
	}

	capital := format(st.Capital, st.Abbr)
	if !slices.Contains(out, capital) {
		out = slices.Insert(out, 0, capital)
	}
	return out[:min(len(out), perState)]
}

func format(city, abbr string) harvest.Location {
	return harvest.Location(city + ", " + abbr)
}

func dedup(names []string) []harvest.Location {
	seen := make(map[string]bool, len(names))
	out := make([]harvest.Location, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, harvest.Location(n))
	}
	return out
}
