package cmd

import (
	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericiooptions"
)

func NewRootCmd(streams genericiooptions.IOStreams) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "katomik-global-deploy",
		Short:         "Deploy cluster-scoped Kubernetes manifests and verify their rollout.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})
	rootCmd.AddCommand(NewDeployCmd(streams))
	return rootCmd
}
