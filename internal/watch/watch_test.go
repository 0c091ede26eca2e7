package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
	"github.com/hashmap-kz/katomik-global-deploy/internal/summary"
)

type fakePrefetcher struct {
	objs map[string]*unstructured.Unstructured
}

func newFakePrefetcher() *fakePrefetcher {
	return &fakePrefetcher{objs: map[string]*unstructured.Unstructured{}}
}

func (f *fakePrefetcher) Get(kind, namespace, name string) (*unstructured.Unstructured, bool) {
	obj, ok := f.objs[kind+"/"+namespace+"/"+name]
	return obj, ok
}

func (f *fakePrefetcher) Prefetch(_ context.Context, _ []*resource.Resource) error { return nil }

type nullSink struct{}

func (nullSink) PhaseHeading(string)                          {}
func (nullSink) AddAction(string)                             {}
func (nullSink) AddParagraph(string)                          {}
func (nullSink) PrintSummary(summary.Status, []summary.Row) {}

func TestWatcherMarksResourceTerminalOnceObserved(t *testing.T) {
	cache := newFakePrefetcher()
	r := resource.New("StorageClass", "sc-a", "storage.k8s.io/v1", "sc.yaml", nil)
	r.MarkDeployStarted(time.Now())
	cache.objs["StorageClass//sc-a"] = &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "storage.k8s.io/v1",
		"kind":       "StorageClass",
	}}

	w := New(cache, nullSink{})
	results, err := w.Run(context.Background(), []*resource.Resource{r}, Options{
		MaxWatchSeconds: 5,
		PollInterval:    10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "succeeded", results[0].State)
}

func TestWatcherTimesOutNonTerminalResourcesAtDeadline(t *testing.T) {
	cache := newFakePrefetcher()
	r := resource.New("ClusterRole", "cr-a", "rbac.authorization.k8s.io/v1", "cr.yaml", nil)
	r.MarkDeployStarted(time.Now())

	w := New(cache, nullSink{})
	results, err := w.Run(context.Background(), []*resource.Resource{r}, Options{
		MaxWatchSeconds: 0,
		PollInterval:    10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "timed_out", results[0].State)
}

func TestSleepForBoundedByDeadline(t *testing.T) {
	deadline := time.Now().Add(50 * time.Millisecond)
	got := sleepFor(time.Second, deadline)
	assert.LessOrEqual(t, got, 50*time.Millisecond)
}

func TestSleepForNeverNegative(t *testing.T) {
	deadline := time.Now().Add(-time.Second)
	assert.Equal(t, time.Duration(0), sleepFor(time.Second, deadline))
}
