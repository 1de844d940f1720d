// Package errors provides error handling for the job board.
//
// It re-exports github.com/cockroachdb/errors (stack traces, hints, details)
// and defines the sentinel taxonomy the application workflow reports.
// Callers check categories with errors.Is against the sentinels below, or
// ask Category for the stable string used on the wire.
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	FlattenHints  = crdb.FlattenHints
	GetAllDetails = crdb.GetAllDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

var (
	// ErrNotFound indicates a student, job, CV or application does not exist
	ErrNotFound = New("not found")

	// ErrDuplicateSubmission indicates the student already applied successfully
	ErrDuplicateSubmission = New("already applied to this job")

	// ErrNoActiveCV indicates no CV was given and the student has none active
	ErrNoActiveCV = New("no active CV")

	// ErrQuotaExceeded indicates the daily notification limit was reached
	ErrQuotaExceeded = New("daily email quota exceeded")

	// ErrNotificationFailed indicates the email transport rejected or failed the send
	ErrNotificationFailed = New("notification failed")

	// ErrInvalidStateTransition indicates the application cannot move to the requested state
	ErrInvalidStateTransition = New("invalid state transition")

	// ErrInvalidRequest indicates the request was malformed
	ErrInvalidRequest = New("invalid request")

	// ErrForbidden indicates the caller does not own the resource
	ErrForbidden = New("forbidden")
)

// QuotaExceededError reports how much of the daily quota is used.
type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily email quota exceeded: %d of %d sent today", e.Used, e.Limit)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// NotificationFailed marks a transport error as a notification failure,
// keeping the transport's message in the error text.
func NotificationFailed(cause error) error {
	if cause == nil {
		return nil
	}
	return Mark(Wrap(cause, "notification failed"), ErrNotificationFailed)
}

// NotFoundf returns an ErrNotFound wrapped with a formatted subject, e.g. "job 4: not found".
func NotFoundf(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// Categories reported to API clients.
const (
	CategoryNotFound               = "not_found"
	CategoryDuplicateSubmission    = "duplicate_submission"
	CategoryNoActiveCV             = "no_active_cv"
	CategoryQuotaExceeded          = "quota_exceeded"
	CategoryNotificationFailed     = "notification_failed"
	CategoryInvalidStateTransition = "invalid_state_transition"
	CategoryInvalidRequest         = "invalid_request"
	CategoryForbidden              = "forbidden"
	CategoryInternal               = "internal"
)

// Category maps an error to its taxonomy category.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrNotFound):
		return CategoryNotFound
	case Is(err, ErrDuplicateSubmission):
		return CategoryDuplicateSubmission
	case Is(err, ErrNoActiveCV):
		return CategoryNoActiveCV
	case Is(err, ErrQuotaExceeded):
		return CategoryQuotaExceeded
	case Is(err, ErrNotificationFailed):
		return CategoryNotificationFailed
	case Is(err, ErrInvalidStateTransition):
		return CategoryInvalidStateTransition
	case Is(err, ErrInvalidRequest):
		return CategoryInvalidRequest
	case Is(err, ErrForbidden):
		return CategoryForbidden
	default:
		return CategoryInternal
	}
}
