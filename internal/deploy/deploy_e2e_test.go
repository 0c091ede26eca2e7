package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/katomik-global-deploy/internal/kubectlrunner"
	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

// fakeRunner is a scripted CommandRunner test double: fn decides the
// ExitCode/Stdout/Stderr for each invocation by verb, and every call is
// recorded in order so tests can assert on dispatch sequencing - this is
// what makes Deploy/applyPass/deployIndividuals exercisable end to end
// without a real kubectl binary.
type fakeRunner struct {
	calls []kubectlrunner.Invocation
	fn    func(inv kubectlrunner.Invocation) (kubectlrunner.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, inv kubectlrunner.Invocation) (kubectlrunner.Result, error) {
	f.calls = append(f.calls, inv)
	result, err := f.fn(inv)
	if err == nil {
		argv := append([]string{inv.Verb}, inv.Args...)
		result.Argv = append([]string{"kubectl"}, argv...)
	}
	return result, err
}

func writeManifest(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("kind: StorageClass\n"), 0o600))
	return path
}

func TestDeployEndToEndHappyApplyNoPrune(t *testing.T) {
	file := writeManifest(t, "sc-a.yaml")
	r := globalResource("StorageClass", "sc-a", "storage.k8s.io/v1", file)

	runner := &fakeRunner{fn: func(kubectlrunner.Invocation) (kubectlrunner.Result, error) {
		return kubectlrunner.Result{ExitCode: 0}, nil
	}}
	d := New(runner, &recordingSink{})

	err := d.Deploy(context.Background(), []*resource.Resource{r}, Options{Prune: false})

	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "apply", runner.calls[0].Verb)
}

func TestDeployEndToEndReplaceFallsBackToCreate(t *testing.T) {
	file := writeManifest(t, "cr-a.yaml")
	r := globalResource("ClusterRole", "cr-a", "rbac.authorization.k8s.io/v1", file)
	r.DeployStrategy = resource.Replace

	runner := &fakeRunner{fn: func(inv kubectlrunner.Invocation) (kubectlrunner.Result, error) {
		switch inv.Verb {
		case "replace":
			return kubectlrunner.Result{
				ExitCode: 1,
				Stderr:   []byte("Error from server (NotFound): clusterroles.rbac.authorization.k8s.io \"cr-a\" not found\n"),
			}, nil
		case "create":
			return kubectlrunner.Result{ExitCode: 0}, nil
		default:
			t.Fatalf("unexpected verb %q", inv.Verb)
			return kubectlrunner.Result{}, nil
		}
	}}
	d := New(runner, &recordingSink{})

	err := d.Deploy(context.Background(), []*resource.Resource{r}, Options{})

	require.NoError(t, err)
	require.Len(t, runner.calls, 2)
	assert.Equal(t, "replace", runner.calls[0].Verb)
	assert.Equal(t, "create", runner.calls[1].Verb)
}

func TestDeployEndToEndApplyFailureSurfacesQuotedArgv(t *testing.T) {
	file := writeManifest(t, "sc-a.yaml")
	r := globalResource("StorageClass", "sc-a", "storage.k8s.io/v1", file)

	runner := &fakeRunner{fn: func(kubectlrunner.Invocation) (kubectlrunner.Result, error) {
		return kubectlrunner.Result{
			ExitCode: 1,
			Stderr:   []byte("error validating data: invalid type for field \"provisioner\"\n"),
		}, nil
	}}
	sink := &recordingSink{}
	d := New(runner, sink)

	err := d.Deploy(context.Background(), []*resource.Resource{r}, Options{Prune: false})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `"kubectl"`)
	assert.Contains(t, err.Error(), `"apply"`)
	assert.NotEmpty(t, sink.paragraphs)
}

func TestDeployIndividualsSuppressesSensitiveStderrOnCreateFallback(t *testing.T) {
	file := writeManifest(t, "db-creds.yaml")
	r := globalResource("Secret", "db-creds", "v1", file)
	r.DeployStrategy = resource.ReplaceForce
	r.Sensitive = true

	runner := &fakeRunner{fn: func(inv kubectlrunner.Invocation) (kubectlrunner.Result, error) {
		return kubectlrunner.Result{
			ExitCode: 1,
			Stderr:   []byte("Error from server: db-creds contains password=hunter2\n"),
		}, nil
	}}
	d := New(runner, &recordingSink{})

	err := d.deployIndividuals(context.Background(), []*resource.Resource{r})

	require.Error(t, err)
	assert.Contains(t, err.Error(), suppressedMessage)
	assert.NotContains(t, err.Error(), "hunter2")
}
