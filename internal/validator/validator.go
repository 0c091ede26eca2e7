// Package validator runs the deploy task's pre-flight checks. Checks
// accumulate rather than short-circuit: every failure is collected and
// surfaced together as a single TaskConfigurationError.
//
// For the global task the check list is the namespaced task's list minus
// "namespace exists" (this task never touches a namespace).
package validator

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/discovery"

	internalerrors "github.com/hashmap-kz/katomik-global-deploy/internal/errors"
	"github.com/hashmap-kz/katomik-global-deploy/internal/kubectlrunner"
	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

// Config groups everything the validator needs to run its checks.
type Config struct {
	Discovery discovery.DiscoveryInterface
	Selector  string
}

// Validate runs the closed check list, accumulating every failure. It
// returns a *errors.TaskConfigurationError if any check failed, or nil if
// every check passed.
func Validate(_ context.Context, cfg Config) error {
	var errs []error

	if err := checkContextReachable(cfg.Discovery); err != nil {
		errs = append(errs, err)
	}
	if err := checkAPIServerResponsive(cfg.Discovery); err != nil {
		errs = append(errs, err)
	}
	if err := checkSelectorWellFormed(cfg.Selector); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return &internalerrors.TaskConfigurationError{Errs: errs}
	}
	return nil
}

func checkContextReachable(disc discovery.DiscoveryInterface) error {
	if _, err := disc.RESTClient().Get().AbsPath("/healthz").DoRaw(context.Background()); err != nil {
		return fmt.Errorf("cluster context is not reachable: %w", err)
	}
	return nil
}

func checkAPIServerResponsive(disc discovery.DiscoveryInterface) error {
	if _, err := disc.ServerVersion(); err != nil {
		return fmt.Errorf("api server did not respond to discovery: %w", err)
	}
	return nil
}

func checkSelectorWellFormed(selector string) error {
	if selector == "" {
		return nil
	}
	if _, err := labels.Parse(selector); err != nil {
		return fmt.Errorf("selector %q is not well-formed: %w", selector, err)
	}
	return nil
}

// ClearSensitiveByDryRun best-effort marks sensitive resources as
// server_dry_run_validated, which lifts the suppression rule in the
// deployer's error classifier. Failures here are not fatal - an
// unvalidated sensitive resource simply stays suppressed on error, which is
// the safe default.
func ClearSensitiveByDryRun(ctx context.Context, runner *kubectlrunner.Runner, resources []*resource.Resource) {
	for _, r := range resources {
		if !r.Sensitive {
			continue
		}
		result, err := runner.Run(ctx, kubectlrunner.Invocation{
			Verb: "apply",
			Args: []string{"-f", r.FilePath, "--dry-run=server"},
		})
		if err == nil && result.ExitCode == 0 {
			r.ServerDryRunValidated = true
		}
	}
}
