// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verdict defines the result kinds reported across the verifier's
// component boundaries and the structured error that carries them. Every
// failure on the request path maps to exactly one Kind, so the reject
// policy can be checked exhaustively instead of string-matched.
package verdict

import (
	"errors"
	"fmt"
)

// Kind classifies a failure on the verification request path.
type Kind uint8

const (
	KindNone                Kind = iota // no failure
	KindTransportFatal                  // rollup node unreachable or envelope unparseable
	KindMalformedPayload                // bad hex or payload too small to split
	KindDeserialization                 // receipt bytes or journal schema don't parse
	KindVerificationFailure             // cryptographic check failed
	KindNoticeSubmission                // post-accept notice could not be delivered
)

// String returns the stable name used in logs, metrics, and audit records.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransportFatal:
		return "transport_fatal"
	case KindMalformedPayload:
		return "malformed_payload"
	case KindDeserialization:
		return "deserialization_error"
	case KindVerificationFailure:
		return "verification_failure"
	case KindNoticeSubmission:
		return "notice_submission_error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Fatal reports whether the kind terminates the process. Only transport
// failures are unrecoverable; every other kind resolves to a reject status
// and the loop continues.
func (k Kind) Fatal() bool {
	return k == KindTransportFatal
}

// Error attaches a Kind and an operation name to an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf wraps a formatted cause with a kind and operation name.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from an error chain, or KindNone if the chain
// carries no verdict.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindNone
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
