package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildApplyArgsNoPrune(t *testing.T) {
	args := buildApplyArgs("/tmp/dir", Options{Prune: false})
	assert.Equal(t, []string{"-f", "/tmp/dir"}, args)
}

func TestBuildApplyArgsPruneWithSelector(t *testing.T) {
	args := buildApplyArgs("/tmp/dir", Options{
		Prune:          true,
		Selector:       "app=platform",
		PruneWhitelist: []string{"rbac.authorization.k8s.io/ClusterRole"},
	})
	assert.Equal(t, []string{
		"-f", "/tmp/dir",
		"--prune",
		"--selector", "app=platform",
		"--prune-whitelist=rbac.authorization.k8s.io/ClusterRole",
	}, args)
}

func TestBuildApplyArgsPruneWithoutSelectorUsesAll(t *testing.T) {
	args := buildApplyArgs("/tmp/dir", Options{Prune: true})
	assert.Equal(t, []string{"-f", "/tmp/dir", "--prune", "--all"}, args)
}

func TestBuildApplyArgsPruneWhitelistOrderPreserved(t *testing.T) {
	args := buildApplyArgs("/tmp/dir", Options{
		Prune:          true,
		PruneWhitelist: []string{"apiextensions.k8s.io/CustomResourceDefinition", "rbac.authorization.k8s.io/ClusterRole"},
	})
	assert.Equal(t, []string{
		"-f", "/tmp/dir",
		"--prune",
		"--all",
		"--prune-whitelist=apiextensions.k8s.io/CustomResourceDefinition",
		"--prune-whitelist=rbac.authorization.k8s.io/ClusterRole",
	}, args)
}

func TestReportPrunedCountsPrunedLines(t *testing.T) {
	sink := &recordingSink{}
	d := &Deployer{Sink: sink}
	d.reportPruned("clusterrole.rbac.authorization.k8s.io/old-role pruned\nstorageclass.storage.k8s.io/sc-a unchanged\nconfigmap/old-cm pruned\n")

	require.Len(t, sink.actions, 1)
	assert.Contains(t, sink.actions[0], "pruned 2 resources")
}

func TestReportPrunedNoMatchesAddsNothing(t *testing.T) {
	sink := &recordingSink{}
	d := &Deployer{Sink: sink}
	d.reportPruned("storageclass.storage.k8s.io/sc-a unchanged\n")
	assert.Empty(t, sink.actions)
}
