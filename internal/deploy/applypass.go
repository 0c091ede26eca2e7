package deploy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	internalerrors "github.com/hashmap-kz/katomik-global-deploy/internal/errors"
	"github.com/hashmap-kz/katomik-global-deploy/internal/kubectlrunner"
	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

var prunedLinePattern = regexp.MustCompile(`(?m)^(.*) pruned$`)

// applyPass runs the single atomic `kubectl apply -f <tmp-dir>` call
// required because apply against a directory is the only idempotent bulk
// path. Required because kubectl apply -f with a directory is atomic from
// the client's view.
func (d *Deployer) applyPass(ctx context.Context, applyables []*resource.Resource, opts Options) error {
	if len(applyables) == 0 {
		return nil
	}

	dir, cleanup, err := applyDir(applyables)
	if err != nil {
		return internalerrors.NewFatalDeploymentError(err.Error())
	}
	defer cleanup()

	now := time.Now()
	for _, r := range applyables {
		r.MarkDeployStarted(now)
	}

	args := buildApplyArgs(dir, opts)

	result, err := d.Runner.Run(ctx, kubectlrunner.Invocation{Verb: "apply", Args: args})
	if err != nil {
		return internalerrors.NewFatalDeploymentError(fmt.Sprintf("running apply: %s", err))
	}

	if result.ExitCode == 0 {
		if opts.Prune {
			d.reportPruned(string(result.Stdout))
		}
		return nil
	}

	d.classifyAndReport(string(result.Stderr), applyables, opts)

	quotedArgv := make([]string, len(result.Argv))
	for i, a := range result.Argv {
		quotedArgv[i] = fmt.Sprintf("%q", a)
	}
	return internalerrors.NewFatalDeploymentError(
		fmt.Sprintf("Command failed: %s", strings.Join(quotedArgv, " ")))
}

// buildApplyArgs builds the apply argv: -f <dir>, then --prune and its
// selector/whitelist flags in the order the spec requires.
//
// --all without a selector is required by the apply CLI to enable pruning
// at cluster scope.
func buildApplyArgs(dir string, opts Options) []string {
	args := []string{"-f", dir}
	if !opts.Prune {
		return args
	}

	args = append(args, "--prune")
	if opts.Selector != "" {
		args = append(args, "--selector", opts.Selector)
	} else {
		args = append(args, "--all")
	}
	for _, t := range opts.PruneWhitelist {
		args = append(args, "--prune-whitelist="+t)
	}
	return args
}

func (d *Deployer) reportPruned(stdout string) {
	matches := prunedLinePattern.FindAllStringSubmatch(stdout, -1)
	if len(matches) == 0 {
		return
	}
	d.Sink.AddAction(fmt.Sprintf("pruned %d resources", len(matches)))
}
