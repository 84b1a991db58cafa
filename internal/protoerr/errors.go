// Package protoerr is the Kind-tagged error type used across the broker.
//
// The broker's three failure classes (spec §7) map directly onto Kind:
// protocol violations and policy refusals are fatal to the session, transient
// failures are logged at WARN and the triggering frame is still forwarded.
package protoerr

import "errors"

// Kind categorizes an error so the broker loop can decide how to react
// without string-matching messages.
type Kind uint8

const (
	// KindInternal marks a bug in the broker itself (nil session, impossible
	// state) rather than anything the wire sent.
	KindInternal Kind = iota + 1
	// KindProtocol marks a frame that violates the wire contract: too short
	// for its declared layout, a dialect seeing an opcode it may never
	// receive (PATCH's 17), or an internal dispatch on an unknown dialect.
	KindProtocol
	// KindPolicy marks a refusal the operator's policy makes, not a wire
	// defect: an unsupported licence kind (XB), for instance.
	KindPolicy
	// KindTransient marks a recoverable failure: a capture file write error,
	// an unrecognized subcommand id, an oversized chunk. The frame is still
	// forwarded.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindProtocol:
		return "protocol"
	case KindPolicy:
		return "policy"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged, optionally-wrapped error.
type Error struct {
	Kind  Kind
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Inner == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Inner.Error()
}

func (e *Error) Unwrap() error { return e.Inner }

// New builds a Kind-tagged error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a Kind-tagged error around an existing cause.
func Wrap(kind Kind, msg string, inner error) *Error {
	return &Error{Kind: kind, Msg: msg, Inner: inner}
}

// IsKind reports whether err (or anything it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// Fatal reports whether the broker should drop the session on this error:
// protocol violations and policy refusals are fatal, everything else
// (including plain non-protoerr errors from I/O) is treated as fatal too,
// since only handlers deliberately tag their own recoverable failures as
// KindTransient.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !IsKind(err, KindTransient)
}
