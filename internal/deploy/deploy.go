// Package deploy implements the apply/replace/create/prune dispatch
// algorithm against a target cluster - the hottest, most consequential
// part of the engine. Deploy raises a fatal error on any unrecoverable
// condition; it never retries beyond the documented replace -> create
// fallback, and it never rolls back (the spec's deploy strategy has no
// rollback step - failures are surfaced so CI can react).
package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	internalerrors "github.com/hashmap-kz/katomik-global-deploy/internal/errors"
	"github.com/hashmap-kz/katomik-global-deploy/internal/kubectlrunner"
	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
	"github.com/hashmap-kz/katomik-global-deploy/internal/summary"
)

// Options groups the per-run deploy flags the CLI surfaces.
type Options struct {
	Prune          bool
	Selector       string
	PruneWhitelist []string
	// SensitiveFilenames is the configured set of basenames whose content
	// must never be echoed on error, independent of per-resource Sensitive
	// flags (e.g. a file known to hold a Secret even though its kind
	// couldn't be parsed).
	SensitiveFilenames map[string]struct{}
}

// CommandRunner is the narrow subprocess contract Deployer needs -
// satisfied by *kubectlrunner.Runner in production and by a scripted fake
// in tests, so Deploy/applyPass/deployIndividuals can be driven end to end
// without shelling out to a real kubectl binary.
type CommandRunner interface {
	Run(ctx context.Context, inv kubectlrunner.Invocation) (kubectlrunner.Result, error)
}

// Deployer executes the dispatch algorithm against one kubectl runner.
type Deployer struct {
	Runner CommandRunner
	Sink   summary.Sink
}

func New(runner CommandRunner, sink summary.Sink) *Deployer {
	return &Deployer{Runner: runner, Sink: sink}
}

// Deploy is the public entry point. Preconditions: resources is non-empty
// and every resource is classified Global - the orchestrator enforces the
// namespaced-rejection invariant before ever calling in here, but Deploy
// asserts it too since a mistake here would mean mutating a namespaced
// object, which this task must never do.
func (d *Deployer) Deploy(ctx context.Context, resources []*resource.Resource, opts Options) error {
	if len(resources) == 0 {
		return internalerrors.NewFatalDeploymentError("deploy called with an empty resource list")
	}
	for _, r := range resources {
		if r.Classification == resource.Namespaced {
			return internalerrors.NewFatalDeploymentError(
				"Deploying namespaced resource is not allowed from this command.")
		}
	}

	applyables, individuals := partition(resources, opts.PruneWhitelist)

	if err := d.deployIndividuals(ctx, individuals); err != nil {
		return err
	}

	if err := d.applyPass(ctx, applyables, opts); err != nil {
		return err
	}

	return nil
}

// partition splits resources into the apply-pass set and the
// individually-deployed (Replace/ReplaceForce) set. Individuals whose kind
// is in the prune whitelist are ALSO added to applyables so the prune pass
// sees them and does not delete them out from under the individual deploy.
// Whitelist entries are matched on their final kind segment, so both
// "Kind" and "group/version/Kind" forms work.
func partition(resources []*resource.Resource, whitelist []string) (applyables, individuals []*resource.Resource) {
	whitelisted := make(map[string]struct{}, len(whitelist))
	for _, w := range whitelist {
		whitelisted[w[strings.LastIndex(w, "/")+1:]] = struct{}{}
	}

	for _, r := range resources {
		if r.DeployStrategy == resource.Apply {
			applyables = append(applyables, r)
			continue
		}
		individuals = append(individuals, r)
		if _, ok := whitelisted[r.Kind]; ok {
			applyables = append(applyables, r)
		}
	}
	return applyables, individuals
}

// deployIndividuals runs Replace/ReplaceForce resources sequentially, in
// list order, with a replace -> create fallback on non-zero exit.
func (d *Deployer) deployIndividuals(ctx context.Context, individuals []*resource.Resource) error {
	for _, r := range individuals {
		r.MarkDeployStarted(time.Now())

		replaceArgs := []string{"-f", r.FilePath}
		if r.DeployStrategy == resource.ReplaceForce {
			replaceArgs = append([]string{"--force", "--cascade"}, replaceArgs...)
		}

		result, err := d.Runner.Run(ctx, kubectlrunner.Invocation{Verb: "replace", Args: replaceArgs})
		if err != nil {
			return internalerrors.NewFatalDeploymentError(fmt.Sprintf("running replace for %s: %s", r.Identity(), err))
		}
		if result.ExitCode == 0 {
			continue
		}

		create, err := d.Runner.Run(ctx, kubectlrunner.Invocation{Verb: "create", Args: []string{"-f", r.FilePath}})
		if err != nil {
			return internalerrors.NewFatalDeploymentError(fmt.Sprintf("running create for %s: %s", r.Identity(), err))
		}
		if create.ExitCode != 0 {
			return &internalerrors.FatalDeploymentError{
				Msg: fmt.Sprintf("replace and create both failed for %s", r.Identity()),
				Err: fmt.Errorf("replace: %s; create: %s",
					sanitizeStderrForResource(r, firstLine(result.Stderr)),
					sanitizeStderrForResource(r, firstLine(create.Stderr))),
			}
		}
	}
	return nil
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
