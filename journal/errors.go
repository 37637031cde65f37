package journal

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord means decoded bytes violate the on-disk format. During
// recovery this is treated as end-of-log; everywhere else it is fatal.
var ErrMalformedRecord = errors.New("jbd2: malformed record")

// ErrLogFull means the space manager could not allocate a log block even
// after an automatic checkpoint purge. Callers should retry the commit once
// more of the log has been checkpointed.
var ErrLogFull = errors.New("jbd2: log full")

// DeviceIoError wraps an underlying block device read/write failure.
type DeviceIoError struct {
	Op  string
	Err error
}

func (e *DeviceIoError) Error() string {
	return fmt.Sprintf("jbd2: device I/O error during %s: %v", e.Op, e.Err)
}

func (e *DeviceIoError) Unwrap() error { return e.Err }

// NewDeviceIoError wraps err as a DeviceIoError for operation op.
func NewDeviceIoError(op string, err error) *DeviceIoError {
	return &DeviceIoError{Op: op, Err: err}
}

// ProtocolMisuseError means the caller violated the engine's single-writer
// contract: a second Begin before Commit, a Commit with no open
// transaction, or MarkDirty/Revoke outside a transaction.
type ProtocolMisuseError struct {
	Reason string
}

func (e *ProtocolMisuseError) Error() string {
	return fmt.Sprintf("jbd2: protocol misuse: %s", e.Reason)
}

// NewProtocolMisuseError builds a ProtocolMisuseError with the given reason.
func NewProtocolMisuseError(reason string) *ProtocolMisuseError {
	return &ProtocolMisuseError{Reason: reason}
}

// CorruptError means recovery found a structurally valid but semantically
// impossible record: a revoke block whose count is smaller than its header
// or exceeds the block it came from. Unlike MalformedRecord this is always
// fatal, even during recovery. Tag home LBAs are not checked against the
// device bounds.
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("jbd2: corrupt journal: %s", e.Reason)
}

// NewCorruptError builds a CorruptError with the given reason.
func NewCorruptError(reason string) *CorruptError {
	return &CorruptError{Reason: reason}
}
