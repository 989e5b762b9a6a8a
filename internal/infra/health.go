package infra

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// StatusOK is reported for passing checks.
const StatusOK = "ok"

// RunChecks runs every check concurrently and reports each outcome by name.
// healthy is false when any check failed.
func RunChecks(ctx context.Context, checks map[string]Check) (statuses map[string]string, healthy bool) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			if err := checks[name](ctx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = StatusOK
			return nil
		})
	}
	_ = g.Wait()

	statuses = make(map[string]string, len(names))
	healthy = true
	for i, name := range names {
		statuses[name] = results[i]
		if results[i] != StatusOK {
			healthy = false
		}
	}
	return statuses, healthy
}
