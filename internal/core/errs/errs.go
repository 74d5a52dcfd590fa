// Package errs defines the coded error kinds from spec.md §7 Error
// Handling Design, built on github.com/agilira/go-errors so callers can
// branch on a stable code instead of string-matching messages.
package errs

import (
	"github.com/agilira/go-errors"
)

// Error codes for the core's operator-facing error surface.
const (
	CodeUnknownSite        errors.ErrorCode = "POWCORE_UNKNOWN_SITE"
	CodeActorMailboxFailed errors.ErrorCode = "POWCORE_ACTOR_MAILBOX_FAILURE"
	CodeBackendUnavailable errors.ErrorCode = "POWCORE_BACKEND_UNAVAILABLE"
	CodeInvalidDefense     errors.ErrorCode = "POWCORE_INVALID_DEFENSE"
)

// UnknownSite reports that a mutating message was directed at a site id
// not present in the Master's registry. Lookups instead return
// (nil, false) per spec.md §7 and do not construct this error.
func UnknownSite(id string) error {
	return errors.NewWithField(CodeUnknownSite, "unknown site", "site_id", id)
}

// ActorMailboxFailure reports that a target actor was stopped or
// unreachable when a message was sent to it.
func ActorMailboxFailure(target string, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, CodeActorMailboxFailed, "actor mailbox unreachable").
			WithContext("target", target).
			AsRetryable()
	}
	return errors.NewWithField(CodeActorMailboxFailed, "actor mailbox unreachable", "target", target).
		AsRetryable()
}

// BackendUnavailable reports a failure from an external cache backend.
func BackendUnavailable(op string, cause error) error {
	return errors.Wrap(cause, CodeBackendUnavailable, "cache backend unavailable").
		WithContext("operation", op).
		AsRetryable()
}

// InvalidDefense reports that a Defense curve was rejected at
// construction time, with reason describing which invariant failed.
func InvalidDefense(reason string) error {
	return errors.NewWithField(CodeInvalidDefense, "invalid defense configuration", "reason", reason)
}

// IsUnknownSite reports whether err carries CodeUnknownSite.
func IsUnknownSite(err error) bool { return errors.HasCode(err, CodeUnknownSite) }

// IsActorMailboxFailure reports whether err carries CodeActorMailboxFailed.
func IsActorMailboxFailure(err error) bool { return errors.HasCode(err, CodeActorMailboxFailed) }

// IsBackendUnavailable reports whether err carries CodeBackendUnavailable.
func IsBackendUnavailable(err error) bool { return errors.HasCode(err, CodeBackendUnavailable) }

// IsInvalidDefense reports whether err carries CodeInvalidDefense.
func IsInvalidDefense(err error) bool { return errors.HasCode(err, CodeInvalidDefense) }
