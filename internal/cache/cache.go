// Package cache implements the per-task read-through resource cache: API
// server listings keyed by (kind, namespace), prefetched in batch before
// status sync to bound the number of remote calls. Each Prefetch fills it
// before a fan-out, and the parallel sync workers then only read it.
package cache

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

type key struct {
	kind      string
	namespace string
}

// groupHint lets Prefetch resolve a kind to a GVR even when the only thing
// known about it is its bare kind name (true for kinds pulled in via
// resource.PrefetchKindsFor rather than parsed from a manifest, which
// always carries its own apiVersion).
type groupHint struct {
	group   string
	version string
}

var builtinGroupHints = map[string]groupHint{
	"Pod": {group: "", version: "v1"},
}

// Cache is filled via Prefetch: before the initial status sync, and again
// on every watcher poll, where each listed key's entries are replaced by a
// fresh list. Each key is listed once per Prefetch call and then read many
// times. Get takes the read lock and Prefetch the write lock, so the
// fan-out's concurrent reads never see a half-written map.
type Cache struct {
	dyn    dynamic.Interface
	mapper meta.RESTMapper

	mu   sync.RWMutex
	objs map[key]map[string]*unstructured.Unstructured // key -> name -> object
}

func New(dyn dynamic.Interface, mapper meta.RESTMapper) *Cache {
	return &Cache{
		dyn:    dyn,
		mapper: mapper,
		objs:   make(map[key]map[string]*unstructured.Unstructured),
	}
}

type prefetchKey struct {
	key
	group   string
	version string
}

// Prefetch lists every (kind, namespace) pair needed by resources, plus any
// extra kinds their kind's prefetch map calls for (e.g. CronJob -> Pod),
// with one list call per distinct key.
func (c *Cache) Prefetch(ctx context.Context, resources []*resource.Resource) error {
	keys := make(map[prefetchKey]struct{})
	for _, r := range resources {
		group, version := splitAPIVersion(r.APIVersion)
		keys[prefetchKey{key: key{kind: r.Kind, namespace: r.Namespace}, group: group, version: version}] = struct{}{}

		for _, extra := range resource.PrefetchKindsFor(r.Kind) {
			hint := builtinGroupHints[extra]
			keys[prefetchKey{key: key{kind: extra, namespace: r.Namespace}, group: hint.group, version: hint.version}] = struct{}{}
		}
	}

	for pk := range keys {
		if err := c.listInto(ctx, pk); err != nil {
			return err
		}
	}
	return nil
}

func splitAPIVersion(apiVersion string) (group, version string) {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return "", ""
	}
	return gv.Group, gv.Version
}

func (c *Cache) listInto(ctx context.Context, pk prefetchKey) error {
	mapping, err := c.mapper.RESTMapping(schema.GroupKind{Group: pk.group, Kind: pk.kind}, pk.version)
	if err != nil {
		return fmt.Errorf("resolving kind %q: %w", pk.kind, err)
	}

	var list *unstructured.UnstructuredList
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace && pk.namespace != "" {
		list, err = c.dyn.Resource(mapping.Resource).Namespace(pk.namespace).List(ctx, metav1.ListOptions{})
	} else {
		list, err = c.dyn.Resource(mapping.Resource).List(ctx, metav1.ListOptions{})
	}
	if err != nil {
		return fmt.Errorf("listing %s: %w", pk.kind, err)
	}

	byName := make(map[string]*unstructured.Unstructured, len(list.Items))
	for i := range list.Items {
		item := list.Items[i]
		byName[item.GetName()] = &item
	}

	c.mu.Lock()
	c.objs[pk.key] = byName
	c.mu.Unlock()
	return nil
}

// Get satisfies resource.CacheReader: a lookup served entirely from memory.
func (c *Cache) Get(kind, namespace, name string) (*unstructured.Unstructured, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byName, ok := c.objs[key{kind: kind, namespace: namespace}]
	if !ok {
		return nil, false
	}
	obj, ok := byName[name]
	return obj, ok
}
