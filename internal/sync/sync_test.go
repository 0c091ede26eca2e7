package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

type fakeCache struct {
	objs map[string]*unstructured.Unstructured
}

func (f *fakeCache) Get(kind, namespace, name string) (*unstructured.Unstructured, bool) {
	obj, ok := f.objs[kind+"/"+namespace+"/"+name]
	return obj, ok
}

func TestSyncVisitsEveryResourceAcrossWorkers(t *testing.T) {
	cache := &fakeCache{objs: map[string]*unstructured.Unstructured{
		"StorageClass//sc-a": {Object: map[string]interface{}{"apiVersion": "storage.k8s.io/v1", "kind": "StorageClass"}},
		"StorageClass//sc-b": {Object: map[string]interface{}{"apiVersion": "storage.k8s.io/v1", "kind": "StorageClass"}},
		"StorageClass//sc-c": {Object: map[string]interface{}{"apiVersion": "storage.k8s.io/v1", "kind": "StorageClass"}},
	}}

	resources := []*resource.Resource{
		resource.New("StorageClass", "sc-a", "storage.k8s.io/v1", "a.yaml", nil),
		resource.New("StorageClass", "sc-b", "storage.k8s.io/v1", "b.yaml", nil),
		resource.New("StorageClass", "sc-c", "storage.k8s.io/v1", "c.yaml", nil),
	}

	require.NoError(t, Sync(resources, cache, 2))
	for _, r := range resources {
		assert.True(t, r.DeploySucceeded())
	}
}

func TestSyncToleratesResourcesNotYetObserved(t *testing.T) {
	r := resource.New("StorageClass", "sc-a", "storage.k8s.io/v1", "a.yaml", nil)
	cache := &fakeCache{objs: map[string]*unstructured.Unstructured{}}

	require.NoError(t, Sync([]*resource.Resource{r}, cache, 1))
	assert.False(t, r.DeploySucceeded())
}

func TestSplitDisjointCoversEveryResourceExactlyOnce(t *testing.T) {
	resources := make([]*resource.Resource, 7)
	for i := range resources {
		resources[i] = resource.New("StorageClass", "sc", "storage.k8s.io/v1", "a.yaml", nil)
	}

	chunks := splitDisjoint(resources, 3)
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	assert.Equal(t, len(resources), total)
}
