// Package watch implements the resource watcher: the verify phase that
// polls cluster state after a deploy until every resource reaches a
// terminal state, or the task's global deadline elapses.
package watch

import (
	"context"
	"time"

	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
	"github.com/hashmap-kz/katomik-global-deploy/internal/summary"
	"github.com/hashmap-kz/katomik-global-deploy/internal/sync"
)

// DefaultPollInterval is the bounded sleep between sync passes, per
// spec.md's "typically 3s".
const DefaultPollInterval = 3 * time.Second

// Options configures one watch run.
type Options struct {
	MaxWatchSeconds int
	PollInterval    time.Duration
	Workers         int
}

// Prefetcher is the narrow cache surface the watcher needs: a read-through
// lookup (to satisfy resource.Sync) plus the batch refresh called once per
// poll iteration. internal/cache.Cache satisfies this; tests can swap in a
// lighter double.
type Prefetcher interface {
	resource.CacheReader
	Prefetch(ctx context.Context, resources []*resource.Resource) error
}

// Watcher refreshes the shared cache and fans out status sync until every
// resource is terminal or the global deadline elapses.
type Watcher struct {
	Cache Prefetcher
	Sink  summary.Sink
}

func New(c Prefetcher, sink summary.Sink) *Watcher {
	return &Watcher{Cache: c, Sink: sink}
}

// Result is the final classification per resource. Results are listed in
// the order resources reached a terminal state; resources settled in the
// same poll pass keep their input order.
type Result struct {
	Resource *resource.Resource
	State    string // succeeded | failed | timed_out
}

// Run polls resources until every one is terminal, or opts.MaxWatchSeconds
// elapses - at which point every remaining non-terminal resource is marked
// timed out directly, bypassing its own per-resource timeout predicate,
// since the task-level deadline takes precedence.
func (w *Watcher) Run(ctx context.Context, resources []*resource.Resource, opts Options) ([]Result, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(time.Duration(opts.MaxWatchSeconds) * time.Second)
	results := make([]Result, 0, len(resources))
	pending := append([]*resource.Resource(nil), resources...)

	for {
		if len(pending) == 0 {
			break
		}

		if err := w.Cache.Prefetch(ctx, pending); err != nil {
			return nil, err
		}
		if err := sync.Sync(pending, w.Cache, opts.Workers); err != nil {
			return nil, err
		}

		var stillPending []*resource.Resource
		for _, r := range pending {
			if terminal, state := r.Terminal(); terminal {
				results = append(results, Result{Resource: r, State: state})
				continue
			}
			stillPending = append(stillPending, r)
		}
		pending = stillPending

		if len(pending) == 0 {
			break
		}

		if !time.Now().Before(deadline) {
			for _, r := range pending {
				results = append(results, Result{Resource: r, State: "timed_out"})
			}
			break
		}

		select {
		case <-ctx.Done():
			for _, r := range pending {
				results = append(results, Result{Resource: r, State: "timed_out"})
			}
			return results, ctx.Err()
		case <-time.After(sleepFor(interval, deadline)):
		}
	}

	return results, nil
}

// sleepFor bounds the poll interval by the remaining time to deadline, so
// the watcher never sleeps past the global timeout before re-checking it.
func sleepFor(interval time.Duration, deadline time.Time) time.Duration {
	remaining := time.Until(deadline)
	if remaining < interval {
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return interval
}
