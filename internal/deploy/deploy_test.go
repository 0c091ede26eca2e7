package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/katomik-global-deploy/internal/kubectlrunner"
	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
	"github.com/hashmap-kz/katomik-global-deploy/internal/summary"
)

type recordingSink struct {
	actions    []string
	paragraphs []string
}

func (s *recordingSink) PhaseHeading(string)                     {}
func (s *recordingSink) AddAction(text string)                   { s.actions = append(s.actions, text) }
func (s *recordingSink) AddParagraph(text string)                { s.paragraphs = append(s.paragraphs, text) }
func (s *recordingSink) PrintSummary(summary.Status, []summary.Row) {}

func globalResource(kind, name, apiVersion, file string) *resource.Resource {
	r := resource.New(kind, name, apiVersion, file, nil)
	r.Classification = resource.Global
	return r
}

func TestDeployRejectsNamespacedResources(t *testing.T) {
	r := resource.New("ConfigMap", "cm-a", "v1", "cm.yaml", nil)
	r.Classification = resource.Namespaced

	d := New(kubectlrunner.New("kubectl", ""), &recordingSink{})
	err := d.Deploy(context.Background(), []*resource.Resource{r}, Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestDeployRejectsEmptyResourceList(t *testing.T) {
	d := New(kubectlrunner.New("kubectl", ""), &recordingSink{})
	err := d.Deploy(context.Background(), nil, Options{})
	require.Error(t, err)
}

func TestPartitionRoutesApplyStrategyToApplyables(t *testing.T) {
	applyRes := globalResource("StorageClass", "sc-a", "storage.k8s.io/v1", "sc.yaml")
	replaceRes := globalResource("ClusterRole", "cr-a", "rbac.authorization.k8s.io/v1", "cr.yaml")
	replaceRes.DeployStrategy = resource.Replace

	applyables, individuals := partition([]*resource.Resource{applyRes, replaceRes}, nil)

	assert.Equal(t, []*resource.Resource{applyRes}, applyables)
	assert.Equal(t, []*resource.Resource{replaceRes}, individuals)
}

func TestPartitionWhitelistedIndividualAlsoJoinsApplyables(t *testing.T) {
	crd := globalResource("CustomResourceDefinition", "widgets.example.com", "apiextensions.k8s.io/v1", "crd.yaml")
	crd.DeployStrategy = resource.Replace

	applyables, individuals := partition([]*resource.Resource{crd}, []string{"CustomResourceDefinition"})

	assert.Equal(t, []*resource.Resource{crd}, applyables)
	assert.Equal(t, []*resource.Resource{crd}, individuals)
}
