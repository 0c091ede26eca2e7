package resource

import (
	"fmt"
	"time"

	kstatus "sigs.k8s.io/cli-utils/pkg/kstatus/status"
)

// perKindTimeout overrides DefaultTimeout for kinds with their own cadence.
// CronJob gets a short timeout because this task never waits on job
// completion - it only checks that the object itself landed on the
// cluster (see cronJobBehavior.Sync).
var perKindTimeout = map[string]time.Duration{
	"CronJob": 30 * time.Second,
}

// prefetchKindsOnSync maps a resource kind to the extra kinds the cache
// should list alongside it before the first sync. Consulted by
// internal/cache when building its prefetch key set.
var prefetchKindsOnSync = map[string][]string{
	"CronJob": {"Pod"},
}

// PrefetchKindsFor returns the extra kinds the cache should prefetch when
// this kind is present in a task's resource list.
func PrefetchKindsFor(kind string) []string {
	return prefetchKindsOnSync[kind]
}

func lookupKind(kind string) (kindBehavior, time.Duration) {
	timeout := DefaultTimeout
	if t, ok := perKindTimeout[kind]; ok {
		timeout = t
	}
	if kind == "CronJob" {
		return cronJobBehavior{}, timeout
	}
	return baseBehavior{}, timeout
}

// baseBehavior is the default kind implementation: status is whatever
// sigs.k8s.io/cli-utils/pkg/kstatus computes from the observed object, and
// deploy_timed_out? fires once the resource's own timeout has elapsed
// without reaching a terminal state.
type baseBehavior struct{}

func (baseBehavior) Sync(r *Resource, c CacheReader) error {
	obj, found := c.Get(r.Kind, r.Namespace, r.Name)
	if !found {
		r.Status.Observed = nil
		return nil
	}
	r.Status.Observed = obj

	result, err := kstatus.Compute(obj)
	if err != nil {
		r.Status.LastMessage = err.Error()
		return nil
	}
	r.Status.LastMessage = result.Message
	switch result.Status {
	case kstatus.CurrentStatus:
		r.Status.DeploySucceeded = true
	case kstatus.FailedStatus:
		r.Status.DeployFailed = true
	}
	return nil
}

func (baseBehavior) DeploySucceeded(r *Resource) bool { return r.Status.DeploySucceeded }
func (baseBehavior) DeployFailed(r *Resource) bool    { return r.Status.DeployFailed }

func (baseBehavior) DeployTimedOut(r *Resource) bool {
	if r.Status.DeployFailed || r.Status.DeploySucceeded {
		return false
	}
	return r.Status.DeployTimedOut || elapsedPastTimeout(r)
}

func (baseBehavior) TimeoutMessage(r *Resource) string {
	return fmt.Sprintf("timed out waiting for %s %q to become ready after %s", r.Kind, r.Name, r.Timeout)
}

func (baseBehavior) PrettyStatus(r *Resource) string {
	if r.Status.LastMessage != "" {
		return r.Status.LastMessage
	}
	if r.Status.Observed == nil {
		return "not observed yet"
	}
	return "in progress"
}

// cronJobBehavior overrides the default: CronJobs have no generic readiness
// condition, so deploy_succeeded? is simply "exists on the cluster".
type cronJobBehavior struct{}

func (cronJobBehavior) Sync(r *Resource, c CacheReader) error {
	obj, found := c.Get(r.Kind, r.Namespace, r.Name)
	if !found {
		r.Status.Observed = nil
		return nil
	}
	r.Status.Observed = obj
	r.Status.DeploySucceeded = true
	r.Status.LastMessage = "exists on the cluster"
	return nil
}

func (cronJobBehavior) DeploySucceeded(r *Resource) bool { return r.Status.DeploySucceeded }
func (cronJobBehavior) DeployFailed(r *Resource) bool    { return r.Status.DeployFailed }

func (cronJobBehavior) DeployTimedOut(r *Resource) bool {
	if r.Status.DeploySucceeded {
		return false
	}
	return r.Status.DeployTimedOut || elapsedPastTimeout(r)
}

func (cronJobBehavior) TimeoutMessage(r *Resource) string {
	return fmt.Sprintf("timed out waiting for CronJob %q to be created after %s", r.Name, r.Timeout)
}

func (cronJobBehavior) PrettyStatus(r *Resource) string {
	if r.Status.DeploySucceeded {
		return "exists on the cluster"
	}
	return "not found yet"
}

func elapsedPastTimeout(r *Resource) bool {
	if r.Status.DeployStartedAt.IsZero() {
		return false
	}
	return time.Since(r.Status.DeployStartedAt) > r.Timeout
}
