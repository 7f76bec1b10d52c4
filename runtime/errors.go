// Package runtime implements the pipeline and executable query plan (QEP)
// runtime (C4): compiled operator pipelines, source/sink handles, the
// termination-token lifecycle protocol, and reconfiguration messages that
// drive setup/start/stop/fail transitions cooperatively through the
// scheduler's task queue. Grounded on the QueryManager/ExecutablePipeline
// lifecycle in original_source/.../Runtime/Execution and
// original_source/.../QueryExecutionPlan.
package runtime

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition marks an attempted lifecycle transition that does
// not match the pipeline or QEP's current state (e.g. Start before
// Setup).
var ErrInvalidTransition = errors.New("runtime: invalid lifecycle transition")

// ErrQueryNotFound is returned by Manager lookups for an unregistered or
// already-destroyed QueryID.
var ErrQueryNotFound = errors.New("runtime: query not found")

// ErrAlreadyRegistered is returned by Manager.RegisterQuery if a plan's
// QueryID somehow collides with an already-registered query (uuid
// generation makes this practically unreachable, but the check is kept
// explicit rather than silently overwriting a running query).
var ErrAlreadyRegistered = errors.New("runtime: query already registered")

// ErrSchemaMismatch marks an input buffer whose schema does not match
// what a pipeline stage expects (spec §7): fatal, since a schema
// mismatch means the plan was compiled against stale catalog state.
var ErrSchemaMismatch = errors.New("runtime: input buffer schema mismatch")

// ErrChannelClosed marks a source/sink peer that terminated outside the
// normal EoS protocol. When a sink's Consume returns it, SinkHandle
// drops the error; no EoS is counted for that channel.
var ErrChannelClosed = errors.New("runtime: channel closed by peer")

// StageError is PipelineStageError{kind, detail} from spec §7: an error
// surfaced by a compiled operator, which triggers QEP failure.
type StageError struct {
	Kind   string
	Detail string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("runtime: pipeline stage error [%s]: %s", e.Kind, e.Detail)
}

// NewStageError builds a StageError, the one error type pipeline stages
// are expected to return for any operator-level failure.
func NewStageError(kind, detail string) error {
	return &StageError{Kind: kind, Detail: detail}
}
