// Package toolrunner provides the tool-invocation boundary for the tool
// chain executor. Failures cross this boundary as explicit Result values
// with an ErrorKind, so the chain executor handles them as ordinary
// branches; runners never panic across the boundary.
package toolrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"docflow/internal/store"
)

// Runner kinds. The complete compile-time enumeration of invocation
// backends; tool configs are validated against it at dispatch time.
const (
	KindDocker = "docker"
	KindHTTP   = "http"
)

// Input is one tool invocation: the current file artifact plus the
// previous step's output metadata.
type Input struct {
	Tool     store.ToolInstance
	FileName string
	// ArtifactPath is the local path of the artifact entering this step.
	ArtifactPath string
	// Metadata is the previous step's output metadata (nil on step one).
	Metadata json.RawMessage
	// WorkDir is the per-file scratch directory runners write outputs to.
	WorkDir string
	// Step is the zero-based position in the chain, used for output naming.
	Step int
}

// ErrorKind classifies an invocation failure. The distinction drives
// retry policy: infrastructure failures are redelivered by the queue,
// tool failures are terminal per-file errors and never auto-retried.
type ErrorKind string

const (
	// ErrorKindTool is a semantic failure reported by the tool itself.
	ErrorKindTool ErrorKind = "tool"
	// ErrorKindInfra is an environmental failure (daemon unreachable,
	// network error) that a retry from scratch may resolve.
	ErrorKindInfra ErrorKind = "infra"
	// ErrorKindTimeout is a per-file deadline expiry.
	ErrorKindTimeout ErrorKind = "timeout"
)

// Error is an invocation failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Result is the outcome of one tool invocation. Exactly one of
// (OutputArtifact, Err) is meaningful.
type Result struct {
	// OutputArtifact is the local path of the artifact this step produced.
	OutputArtifact string
	// Metadata is the step's output metadata, propagated to the next step.
	Metadata json.RawMessage
	Err      *Error
}

// Failed reports whether the invocation failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

func toolErr(format string, args ...interface{}) Result {
	return Result{Err: &Error{Kind: ErrorKindTool, Message: fmt.Sprintf(format, args...)}}
}

func infraErr(format string, args ...interface{}) Result {
	return Result{Err: &Error{Kind: ErrorKindInfra, Message: fmt.Sprintf(format, args...)}}
}

// Runner invokes one tool against one file. Invocations must be safe to
// re-run from scratch: queue-level retries restart the whole chain.
type Runner interface {
	Kind() string
	Invoke(ctx context.Context, in Input) Result
}

// Registry maps runner kinds to configured Runner instances. It is
// populated once at worker startup with the fixed set of backends.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry builds a registry from the given runners.
func NewRegistry(runners ...Runner) *Registry {
	m := make(map[string]Runner, len(runners))
	for _, r := range runners {
		m[r.Kind()] = r
	}
	return &Registry{runners: m}
}

// Lookup returns the runner for a tool's configured backend.
func (reg *Registry) Lookup(kind string) (Runner, error) {
	r, ok := reg.runners[kind]
	if !ok {
		return nil, fmt.Errorf("unknown tool runner kind %q (known: %v)", kind, reg.Kinds())
	}
	return r, nil
}

// Kinds returns the registered runner kinds, sorted for stable errors.
func (reg *Registry) Kinds() []string {
	kinds := make([]string, 0, len(reg.runners))
	for k := range reg.runners {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
