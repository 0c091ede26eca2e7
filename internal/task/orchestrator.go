// Package task sequences a single deploy run end to end: initialize,
// validate, initial-status, deploy, verify. A failure in an earlier phase
// aborts every later one. The orchestrator is the only component that owns
// the full resource list and the summary/metrics sinks for the run's
// lifetime - every other component borrows access for the duration of one
// phase.
package task

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	k8sdiscovery "k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"

	"github.com/hashmap-kz/katomik-global-deploy/internal/cache"
	"github.com/hashmap-kz/katomik-global-deploy/internal/deploy"
	appdiscovery "github.com/hashmap-kz/katomik-global-deploy/internal/discovery"
	internalerrors "github.com/hashmap-kz/katomik-global-deploy/internal/errors"
	"github.com/hashmap-kz/katomik-global-deploy/internal/kubectlrunner"
	"github.com/hashmap-kz/katomik-global-deploy/internal/metrics"
	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
	"github.com/hashmap-kz/katomik-global-deploy/internal/summary"
	"github.com/hashmap-kz/katomik-global-deploy/internal/sync"
	"github.com/hashmap-kz/katomik-global-deploy/internal/template"
	"github.com/hashmap-kz/katomik-global-deploy/internal/validator"
	"github.com/hashmap-kz/katomik-global-deploy/internal/watch"
)

// Config groups everything a single run needs: CLI flags plus the client
// handles the caller (cmd/deploy.go) has already constructed.
type Config struct {
	TemplatePaths   []string
	Recursive       bool
	Selector        string
	Prune           bool
	PruneWhitelist  []string
	VerifyResult    bool
	MaxWatchSeconds int
	Workers         int

	KubectlPath string
	KubeContext string

	Discovery k8sdiscovery.DiscoveryInterface
	Dynamic   dynamic.Interface
	Mapper    meta.RESTMapper

	Sink    summary.Sink
	Metrics metrics.Sink
}

// Orchestrator runs the five-phase sequence and produces a final Status.
type Orchestrator struct {
	cfg Config
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run executes initialize -> validate -> initial-status -> deploy -> verify
// in order. An error from any phase aborts every later one; Run always
// attempts PrintSummary before returning, even on failure, so partial
// progress is never silently lost.
func (o *Orchestrator) Run(ctx context.Context) (summary.Status, error) {
	disc := appdiscovery.New(o.cfg.Discovery, o.cfg.Dynamic)
	runner := kubectlrunner.New(o.cfg.KubectlPath, o.cfg.KubeContext)
	c := cache.New(o.cfg.Dynamic, o.cfg.Mapper)

	var resources []*resource.Resource

	runErr := o.cfg.Metrics.MeasureMethod("deploy_task", map[string]string{"context": o.cfg.KubeContext}, func() error {
		var phaseErr error
		resources, phaseErr = o.initialize(ctx, disc)
		if phaseErr != nil {
			return phaseErr
		}

		o.cfg.Sink.PhaseHeading("validate")
		if phaseErr = validator.Validate(ctx, validator.Config{Discovery: o.cfg.Discovery, Selector: o.cfg.Selector}); phaseErr != nil {
			return phaseErr
		}
		validator.ClearSensitiveByDryRun(ctx, runner, resources)

		o.cfg.Sink.PhaseHeading("initial-status")
		if phaseErr = c.Prefetch(ctx, resources); phaseErr != nil {
			return phaseErr
		}
		if phaseErr = sync.Sync(resources, c, o.cfg.Workers); phaseErr != nil {
			return phaseErr
		}

		o.cfg.Sink.PhaseHeading("deploy")
		deployer := deploy.New(runner, o.cfg.Sink)
		if phaseErr = deployer.Deploy(ctx, resources, deploy.Options{
			Prune:          o.cfg.Prune,
			Selector:       o.cfg.Selector,
			PruneWhitelist: o.cfg.PruneWhitelist,
		}); phaseErr != nil {
			return phaseErr
		}

		if !o.cfg.VerifyResult {
			return nil
		}

		o.cfg.Sink.PhaseHeading("verify")
		w := watch.New(c, o.cfg.Sink)
		results, watchErr := w.Run(ctx, resources, watch.Options{
			MaxWatchSeconds: o.cfg.MaxWatchSeconds,
			Workers:         o.cfg.Workers,
		})
		if watchErr != nil {
			return watchErr
		}
		o.reportWatchResults(results)

		timedOut, anyFailed := timedOutIdentities(resources)
		if !anyFailed && len(timedOut) > 0 {
			return internalerrors.NewDeploymentTimeoutError(timedOut)
		}
		return nil
	})

	status := classify(resources, o.cfg.VerifyResult, runErr)
	o.cfg.Sink.PrintSummary(status, summaryRows(resources))
	return status, runErr
}

// initialize runs the template-discovery and resource-classification step:
// every resource's classification is derived from the cluster's discovered
// set of cluster-scoped kinds, and prunable is derived from the configured
// whitelist (entries are matched on their final kind segment, so both
// "Kind" and "group/version/Kind" forms work). A namespaced resource fails
// the task here, before any kubectl command (including the dry run) runs.
func (o *Orchestrator) initialize(ctx context.Context, disc *appdiscovery.Discovery) ([]*resource.Resource, error) {
	o.cfg.Sink.PhaseHeading("initialize")

	resources, err := template.Discover(o.cfg.TemplatePaths, o.cfg.Recursive)
	if err != nil {
		return nil, err
	}

	globalKinds, err := disc.GlobalResourceKinds(ctx)
	if err != nil {
		return nil, internalerrors.NewFatalDeploymentError(fmt.Sprintf("discovering cluster-scoped kinds: %s", err))
	}

	whitelist := make(map[string]struct{}, len(o.cfg.PruneWhitelist))
	for _, w := range o.cfg.PruneWhitelist {
		whitelist[w[strings.LastIndex(w, "/")+1:]] = struct{}{}
	}

	for _, r := range resources {
		if _, ok := globalKinds[r.Kind]; ok {
			r.Classification = resource.Global
		} else {
			r.Classification = resource.Namespaced
			return nil, internalerrors.NewFatalDeploymentError(
				"Deploying namespaced resource is not allowed from this command.")
		}
		if _, ok := whitelist[r.Kind]; ok {
			r.Prunable = true
		}
	}

	return resources, nil
}

// reportWatchResults folds the watcher's deadline-forced timeouts back onto
// each resource's own status before the final summary table is built.
func (o *Orchestrator) reportWatchResults(results []watch.Result) {
	for _, res := range results {
		if res.State == "timed_out" {
			res.Resource.Status.DeployTimedOut = true
		}
		o.cfg.Sink.AddAction(fmt.Sprintf("%s: %s", res.Resource.Identity(), res.State))
	}
}

// timedOutIdentities reports every timed-out resource's identity, and
// whether any resource hard-failed. A non-empty timed-out list only raises
// DeploymentTimeoutError when anyFailed is false - a hard failure always
// takes precedence over a timeout.
func timedOutIdentities(resources []*resource.Resource) (timedOut []string, anyFailed bool) {
	for _, r := range resources {
		switch {
		case r.DeployFailed():
			anyFailed = true
		case r.DeployTimedOut():
			timedOut = append(timedOut, r.Identity())
		}
	}
	return timedOut, anyFailed
}

// classify derives the run's terminal summary status: success iff every
// resource succeeded; timed_out iff every non-success resource is
// timed-out with no hard failures; failure otherwise.
func classify(resources []*resource.Resource, verified bool, runErr error) summary.Status {
	if internalerrors.IsTimeoutError(runErr) {
		return summary.StatusTimedOut
	}
	if runErr != nil {
		return summary.StatusFailure
	}
	if !verified {
		return summary.StatusSuccess
	}

	anyFailed := false
	anyTimedOut := false
	allSucceeded := true
	for _, r := range resources {
		switch {
		case r.DeployFailed():
			anyFailed = true
			allSucceeded = false
		case r.DeployTimedOut():
			anyTimedOut = true
			allSucceeded = false
		case r.DeploySucceeded():
		default:
			allSucceeded = false
		}
	}

	switch {
	case allSucceeded:
		return summary.StatusSuccess
	case anyFailed:
		return summary.StatusFailure
	case anyTimedOut:
		return summary.StatusTimedOut
	default:
		return summary.StatusFailure
	}
}

func summaryRows(resources []*resource.Resource) []summary.Row {
	rows := make([]summary.Row, 0, len(resources))
	for _, r := range resources {
		_, state := r.Terminal()
		rows = append(rows, summary.Row{
			Kind:    r.Kind,
			Name:    r.Name,
			State:   state,
			Message: r.PrettyStatus(),
		})
	}
	return rows
}
