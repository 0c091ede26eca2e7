package cmd

import (
	"context"
	"fmt"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/genericiooptions"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/restmapper"
	"k8s.io/utils/ptr"

	"github.com/hashmap-kz/katomik-global-deploy/internal/metrics"
	"github.com/hashmap-kz/katomik-global-deploy/internal/summary"
	"github.com/hashmap-kz/katomik-global-deploy/internal/task"
)

// deployOptions holds every flag the deploy command surfaces, per spec.md's
// external-interfaces contract: --verify-result (default true), --prune
// (default true), plus --selector, --template-paths, --max-watch-seconds.
type deployOptions struct {
	templatePaths   []string
	recursive       bool
	selector        string
	prune           bool
	pruneWhitelist  []string
	verifyResult    bool
	maxWatchSeconds int
	workers         int
}

type deployRunOptions struct {
	configFlags *genericclioptions.ConfigFlags
	streams     genericiooptions.IOStreams
	opts        deployOptions
}

// NewDeployCmd builds the deploy subcommand of katomik-global-deploy. It
// keeps the task-level flags at the top and pushes the kubectl connection
// flags into their own section so --help stays short.
func NewDeployCmd(streams genericiooptions.IOStreams) *cobra.Command {
	cfgFlags := genericclioptions.NewConfigFlags(true)
	opts := deployOptions{prune: true, verifyResult: true}

	cmd := &cobra.Command{
		Use:   "deploy -f PATH [-f PATH...]",
		Short: "Deploy a set of cluster-scoped Kubernetes manifests and verify their rollout",
		Long: `deploy applies a directory of already-rendered cluster-scoped manifests,
prunes anything the selector no longer covers, and waits until every
resource reaches a terminal state or the watch deadline elapses.`,
		Example: `
  # Deploy everything under ./manifests
  katomik-global-deploy deploy -f ./manifests -R

  # Deploy with pruning scoped to a label selector
  katomik-global-deploy deploy -f ./manifests --selector app=platform

  # Skip the post-apply verification wait
  katomik-global-deploy deploy -f ./manifests --verify-result=false
`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(opts.templatePaths) == 0 {
				return fmt.Errorf("at least one --template-paths/-f must be specified")
			}

			run := &deployRunOptions{
				configFlags: cfgFlags,
				streams:     streams,
				opts:        opts,
			}
			return runDeploy(cmd.Context(), run)
		},
	}

	f := cmd.Flags()
	f.SortFlags = false

	f.StringSliceVarP(&opts.templatePaths, "template-paths", "f", nil,
		"Manifest files or directories to deploy.")
	_ = cmd.MarkFlagRequired("template-paths")
	f.BoolVarP(&opts.recursive, "recursive", "R", false,
		"Recurse into directories specified with --template-paths.")
	f.StringVar(&opts.selector, "selector", "",
		"Label selector scoping prune to matching resources.")
	f.BoolVar(&opts.prune, "prune", true,
		"Prune resources no longer present in the template set.")
	f.StringSliceVar(&opts.pruneWhitelist, "prune-whitelist", nil,
		"Additional group/kind allowed to be pruned (repeatable).")
	f.BoolVar(&opts.verifyResult, "verify-result", true,
		"Wait for deployed resources to reach a terminal state before exiting.")
	f.IntVar(&opts.maxWatchSeconds, "max-watch-seconds", 300,
		"Global deadline for the verify phase.")
	f.IntVar(&opts.workers, "workers", 0,
		"Worker pool width for status sync fan-out (0 selects the default).")

	conn := pflag.NewFlagSet("Kubernetes connection flags", pflag.ContinueOnError)
	cfgFlags.AddFlags(conn)
	cmd.Flags().AddFlagSet(conn)

	return cmd
}

func runDeploy(ctx context.Context, run *deployRunOptions) error {
	cfg, err := run.configFlags.ToRESTConfig()
	if err != nil {
		return fmt.Errorf("building kube client config: %w", err)
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return fmt.Errorf("building dynamic client: %w", err)
	}
	disc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return fmt.Errorf("building discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(disc))

	zapLog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = zapLog.Sync() }()
	log := zapr.NewLogger(zapLog)

	kubeContext := ptr.Deref(run.configFlags.Context, "")

	orch := task.New(task.Config{
		TemplatePaths:   run.opts.templatePaths,
		Recursive:       run.opts.recursive,
		Selector:        run.opts.selector,
		Prune:           run.opts.prune,
		PruneWhitelist:  run.opts.pruneWhitelist,
		VerifyResult:    run.opts.verifyResult,
		MaxWatchSeconds: run.opts.maxWatchSeconds,
		Workers:         run.opts.workers,
		KubeContext:     kubeContext,
		Discovery:       disc,
		Dynamic:         dyn,
		Mapper:          mapper,
		Sink:            summary.NewConsole(run.streams.Out, log),
		Metrics:         metrics.NewPrometheus(prometheus.NewRegistry()),
	})

	status, runErr := orch.Run(ctx)
	if runErr != nil {
		return runErr
	}
	if status != summary.StatusSuccess {
		return fmt.Errorf("deploy finished with status %s", status)
	}
	return nil
}
