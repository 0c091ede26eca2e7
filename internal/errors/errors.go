// Package errors defines the closed set of fatal error kinds the deploy
// engine can raise. Every phase method either returns nil or one of these;
// callers classify them through the Is* helpers below (the orchestrator for
// the summary status, the metrics sink for its status tag).
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// TaskConfigurationError wraps the accumulated failures from the config
// validator's pre-flight checks. Checks accumulate rather than
// short-circuit, so this always carries the full list.
type TaskConfigurationError struct {
	Errs []error
}

func (e *TaskConfigurationError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration error(s):\n  %s", strings.Join(msgs, "\n  "))
}

func (e *TaskConfigurationError) Unwrap() []error { return e.Errs }

// InvalidTemplateError is raised when a manifest template fails to parse or
// violates a template-level invariant (e.g. a duplicate kind/name pair).
type InvalidTemplateError struct {
	File string
	Err  error
}

func (e *InvalidTemplateError) Error() string {
	return fmt.Sprintf("invalid template %q: %s", e.File, e.Err)
}

func (e *InvalidTemplateError) Unwrap() error { return e.Err }

// FatalDeploymentError is raised for any unrecoverable apply/replace/create
// failure, or when a resource's deploy_failed? predicate returns true after
// verification.
type FatalDeploymentError struct {
	Msg string
	Err error
}

func (e *FatalDeploymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FatalDeploymentError) Unwrap() error { return e.Err }

// NewFatalDeploymentError builds a FatalDeploymentError with no wrapped
// cause - used for structural failures like the namespaced-resource
// rejection, which carry a literal message and nothing else.
func NewFatalDeploymentError(msg string) *FatalDeploymentError {
	return &FatalDeploymentError{Msg: msg}
}

// DeploymentTimeoutError is raised when the watcher's global deadline
// elapses and every non-succeeded resource is timed-out (no hard failures).
type DeploymentTimeoutError struct {
	TimedOut []string
}

func (e *DeploymentTimeoutError) Error() string {
	return fmt.Sprintf("deployment timed out waiting for: %s", strings.Join(e.TimedOut, ", "))
}

// NewDeploymentTimeoutError builds a DeploymentTimeoutError carrying the
// identities of every resource still non-terminal when the global watch
// deadline elapsed.
func NewDeploymentTimeoutError(timedOut []string) *DeploymentTimeoutError {
	return &DeploymentTimeoutError{TimedOut: timedOut}
}

// As-compatible helpers so callers can classify an error without importing
// the concrete types directly.

func IsConfigurationError(err error) bool {
	var e *TaskConfigurationError
	return errors.As(err, &e)
}

func IsTimeoutError(err error) bool {
	var e *DeploymentTimeoutError
	return errors.As(err, &e)
}

func IsFatalDeploymentError(err error) bool {
	var e *FatalDeploymentError
	return errors.As(err, &e)
}
