// Package sync implements the bounded worker-pool fan-out used at two
// points in a task: the initial status sync, and the watcher's periodic
// resync. A single helper splits the resource list across W workers; each
// worker processes a disjoint subset; the helper joins before returning.
package sync

import (
	stdsync "sync"

	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

// DefaultWorkers bounds the fan-out width, per spec.md's "e.g. 8".
const DefaultWorkers = 8

// CacheReader is re-declared here (rather than imported from
// internal/resource) purely as a type alias for readability at call sites;
// it is structurally identical to resource.CacheReader.
type CacheReader = resource.CacheReader

// Sync fans resources out across at most `workers` goroutines, calling
// Sync(cache) on each. Workers never mutate the resource list itself, only
// the fields owned by each resource's own Status. Returns the first error
// encountered, if any, after every worker has joined.
func Sync(resources []*resource.Resource, cache CacheReader, workers int) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if len(resources) == 0 {
		return nil
	}
	if workers > len(resources) {
		workers = len(resources)
	}

	var wg stdsync.WaitGroup
	errs := make([]error, workers)

	chunks := splitDisjoint(resources, workers)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, r := range chunk {
				if err := r.Sync(cache); err != nil {
					errs[i] = err
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// splitDisjoint partitions resources into n contiguous, disjoint slices.
// Order within the original list is preserved within each slice, matching
// the spec's requirement that the watcher reports status in resource-list
// order deterministically per iteration (callers re-derive order from the
// original slice, not from goroutine completion order).
func splitDisjoint(resources []*resource.Resource, n int) [][]*resource.Resource {
	chunks := make([][]*resource.Resource, n)
	per := (len(resources) + n - 1) / n
	for i := 0; i < n; i++ {
		start := i * per
		if start >= len(resources) {
			break
		}
		end := start + per
		if end > len(resources) {
			end = len(resources)
		}
		chunks[i] = resources[start:end]
	}
	return chunks
}
