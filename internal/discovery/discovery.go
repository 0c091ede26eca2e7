// Package discovery performs the one-shot query against the API server's
// discovery endpoints: which kinds are cluster-scoped, and which CRDs are
// installed. Results are fetched once and memoized for the task's lifetime.
package discovery

import (
	"context"
	"fmt"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
)

var crdGVR = schema.GroupVersionResource{
	Group:    "apiextensions.k8s.io",
	Version:  "v1",
	Resource: "customresourcedefinitions",
}

// CRD is the slice of a CustomResourceDefinition this engine cares about:
// enough to locate its schema and know whether it is cluster- or
// namespace-scoped.
type CRD struct {
	Name    string
	Group   string
	Kind    string
	Plural  string
	Scope   string // "Cluster" or "Namespaced"
	Version string
}

// Discovery is a memoized view of the cluster's kind inventory. Failure to
// reach the API server here is fatal - the config validator surfaces it.
type Discovery struct {
	client discovery.DiscoveryInterface
	dyn    dynamic.Interface

	kindsOnce sync.Once
	kinds     map[string]struct{}
	kindsErr  error

	crdsOnce sync.Once
	crds     []CRD
	crdsErr  error
}

func New(client discovery.DiscoveryInterface, dyn dynamic.Interface) *Discovery {
	return &Discovery{client: client, dyn: dyn}
}

// GlobalResourceKinds returns the set of cluster-scoped kind names known to
// the API server (e.g. "ClusterRole", "StorageClass", ...).
func (d *Discovery) GlobalResourceKinds(_ context.Context) (map[string]struct{}, error) {
	d.kindsOnce.Do(func() {
		_, apiResourceLists, err := discovery.ServerGroupsAndResources(d.client)
		if err != nil && apiResourceLists == nil {
			d.kindsErr = fmt.Errorf("discovering server resources: %w", err)
			return
		}
		kinds := make(map[string]struct{})
		for _, list := range apiResourceLists {
			for _, res := range list.APIResources {
				if !res.Namespaced {
					kinds[res.Kind] = struct{}{}
				}
			}
		}
		d.kinds = kinds
	})
	return d.kinds, d.kindsErr
}

// CRDs lists every CustomResourceDefinition installed on the cluster.
func (d *Discovery) CRDs(ctx context.Context) ([]CRD, error) {
	d.crdsOnce.Do(func() {
		list, err := d.dyn.Resource(crdGVR).List(ctx, metav1.ListOptions{})
		if err != nil {
			d.crdsErr = fmt.Errorf("listing customresourcedefinitions: %w", err)
			return
		}
		crds := make([]CRD, 0, len(list.Items))
		for _, item := range list.Items {
			crds = append(crds, crdFromUnstructured(item))
		}
		d.crds = crds
	})
	return d.crds, d.crdsErr
}

func crdFromUnstructured(u unstructured.Unstructured) CRD {
	group, _, _ := unstructured.NestedString(u.Object, "spec", "group")
	kind, _, _ := unstructured.NestedString(u.Object, "spec", "names", "kind")
	plural, _, _ := unstructured.NestedString(u.Object, "spec", "names", "plural")
	scope, _, _ := unstructured.NestedString(u.Object, "spec", "scope")

	version := ""
	versions, _, _ := unstructured.NestedSlice(u.Object, "spec", "versions")
	for _, v := range versions {
		vm, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		served, _, _ := unstructured.NestedBool(vm, "served")
		name, _, _ := unstructured.NestedString(vm, "name")
		if served {
			version = name
			break
		}
	}

	return CRD{
		Name:    u.GetName(),
		Group:   group,
		Kind:    kind,
		Plural:  plural,
		Scope:   scope,
		Version: version,
	}
}
