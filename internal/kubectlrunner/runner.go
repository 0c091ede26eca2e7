// Package kubectlrunner is the narrow subprocess contract the core calls
// to invoke the external kubectl binary: apply, replace, and create, each
// accepting -f <path>, with the active kube-context carried through.
//
// This is the one seam in the engine that shells out rather than calling
// the Kubernetes REST API directly - per the spec's external-interfaces
// contract - so it is a thin os/exec wrapper rather than a client-go call.
package kubectlrunner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Runner invokes a kubectl binary. It is reentrant/stateless: the same
// Runner is safe to call concurrently from multiple goroutines, since each
// call starts its own subprocess with its own argv and environment.
type Runner struct {
	// KubectlPath is the binary to invoke - defaults to "kubectl" if empty.
	KubectlPath string
	// Context is the kube-context name to pass via --context, if non-empty.
	Context string
}

func New(kubectlPath, kubeContext string) *Runner {
	if kubectlPath == "" {
		kubectlPath = "kubectl"
	}
	return &Runner{KubectlPath: kubectlPath, Context: kubeContext}
}

// Invocation is one <kubectl> <verb> [...args] call. Namespace is never
// set by this engine (global resources carry no namespace - use_namespace
// is implicitly false for every call this engine makes).
type Invocation struct {
	Verb string
	Args []string
}

// Result is the subprocess contract's return value: stdout, stderr, and
// exit status.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Argv     []string
}

// Run executes one kubectl invocation to completion and captures its
// output. It returns a non-nil error only when the subprocess could not be
// started at all; a non-zero exit status is reported via Result.ExitCode
// and Result.Stderr, not via the returned error, since non-zero exits are
// an expected, handled outcome (e.g. replace-not-found).
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	args := make([]string, 0, len(inv.Args)+2)
	args = append(args, inv.Verb)
	if r.Context != "" {
		args = append(args, "--context", r.Context)
	}
	args = append(args, inv.Args...)

	cmd := exec.CommandContext(ctx, r.KubectlPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
		Argv:   append([]string{r.KubectlPath}, args...),
	}

	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return result, runErr
}
