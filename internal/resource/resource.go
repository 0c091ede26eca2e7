// Package resource models a single Kubernetes object participating in a
// deploy task: its identity, file origin, classification, deploy strategy,
// and status evaluation predicates.
//
// Kinds are a closed set of variants implementing a shared capability
// table (Sync/DeploySucceeded/DeployFailed/DeployTimedOut/TimeoutMessage/
// PrettyStatus). A default (base) implementation covers the common case;
// specific kinds override it in kinds.go.
package resource

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Classification distinguishes cluster-scoped resources (which this task
// deploys) from namespaced ones (which it must reject before any apply).
type Classification int

const (
	ClassificationUnknown Classification = iota
	Global
	Namespaced
)

func (c Classification) String() string {
	switch c {
	case Global:
		return "Global"
	case Namespaced:
		return "Namespaced"
	default:
		return "Unknown"
	}
}

// DeployStrategy is the per-kind mutation policy. Replace and ReplaceForce
// resources are deployed individually (sequentially, in list order);
// Apply resources go through the single atomic apply pass.
type DeployStrategy int

const (
	Apply DeployStrategy = iota
	Replace
	ReplaceForce
)

// DefaultTimeout is used by every kind unless overridden in the kind table
// below (see kinds.go's perKindTimeout).
const DefaultTimeout = 5 * time.Minute

// CacheReader is the narrow read surface a Resource needs from the shared
// cache during sync. Resource never imports the cache package directly -
// this keeps internal/cache free to depend on internal/resource instead of
// the other way around.
type CacheReader interface {
	Get(kind, namespace, name string) (*unstructured.Unstructured, bool)
}

// Status holds everything mutated by the status synchronizer and the
// deployer during the lifetime of a single task.
type Status struct {
	Observed        *unstructured.Unstructured
	DeploySucceeded bool
	DeployFailed    bool
	DeployTimedOut  bool
	DeployStartedAt time.Time
	LastMessage     string
}

// Resource is the in-memory representation of one manifest's target
// object. Two resources in a task never share (Kind, Name) - the template
// set enforces this at discovery time.
type Resource struct {
	Kind       string
	Name       string
	Namespace  string // empty for global resources
	APIVersion string

	FilePath    string
	RawManifest []byte
	Sensitive   bool

	Classification Classification
	DeployStrategy DeployStrategy
	Prunable       bool
	Timeout        time.Duration

	ServerDryRunValidated bool

	Status Status

	behavior kindBehavior
}

// New builds a Resource for the given kind/name, wiring in the behavior
// registered for that kind (or the base behavior if none is registered).
func New(kind, name, apiVersion, filePath string, raw []byte) *Resource {
	b, timeout := lookupKind(kind)
	return &Resource{
		Kind:        kind,
		Name:        name,
		APIVersion:  apiVersion,
		FilePath:    filePath,
		RawManifest: raw,
		DeployStrategy: Apply,
		Timeout:     timeout,
		behavior:    b,
	}
}

// Identity is the (kind, name) pair that uniquely identifies this resource
// within a task.
func (r *Resource) Identity() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.Name)
}

// MarkDeployStarted sets DeployStartedAt exactly once - subsequent calls
// are no-ops. This upholds the invariant that deploy_started_at is set
// immediately before the first API mutation for the resource, and only
// once even if the deployer retries (replace -> create fallback).
func (r *Resource) MarkDeployStarted(now time.Time) {
	if r.Status.DeployStartedAt.IsZero() {
		r.Status.DeployStartedAt = now
	}
}

// Sync refreshes this resource's status from the cache by delegating to
// its registered kind behavior.
func (r *Resource) Sync(c CacheReader) error {
	return r.behavior.Sync(r, c)
}

func (r *Resource) DeploySucceeded() bool { return r.behavior.DeploySucceeded(r) }
func (r *Resource) DeployFailed() bool    { return r.behavior.DeployFailed(r) }
func (r *Resource) DeployTimedOut() bool  { return r.behavior.DeployTimedOut(r) }
func (r *Resource) TimeoutMessage() string { return r.behavior.TimeoutMessage(r) }
func (r *Resource) PrettyStatus() string   { return r.behavior.PrettyStatus(r) }

// Terminal reports whether this resource has reached a terminal state, in
// the precedence order mandated by the spec: failed > timed_out >
// succeeded.
func (r *Resource) Terminal() (terminal bool, state string) {
	switch {
	case r.DeployFailed():
		return true, "failed"
	case r.DeployTimedOut():
		return true, "timed_out"
	case r.DeploySucceeded():
		return true, "succeeded"
	default:
		return false, "in_progress"
	}
}

// kindBehavior is the capability set every kind implements.
type kindBehavior interface {
	Sync(r *Resource, c CacheReader) error
	DeploySucceeded(r *Resource) bool
	DeployFailed(r *Resource) bool
	DeployTimedOut(r *Resource) bool
	TimeoutMessage(r *Resource) string
	PrettyStatus(r *Resource) string
}
