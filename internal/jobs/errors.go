package jobs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies job errors so callers can branch without parsing messages.
type Kind string

const (
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindNotFound         Kind = "job_not_found"
	KindNotReady         Kind = "job_not_ready"
	KindJobFailed        Kind = "job_failed"
	KindEngineFailure    Kind = "engine_failure"
	KindInternal         Kind = "internal"
	KindUnavailable      Kind = "unavailable"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrNotReady         = &Error{Kind: KindNotReady}
	ErrJobFailed        = &Error{Kind: KindJobFailed}
	ErrEngineFailure    = &Error{Kind: KindEngineFailure}
	ErrInternal         = &Error{Kind: KindInternal}
	ErrUnavailable      = &Error{Kind: KindUnavailable}
)

// Error is the only error type returned by the job lifecycle.
type Error struct {
	Kind   Kind
	JobID  ID
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(kindMessage(e.Kind))
	if e.JobID != "" {
		fmt.Fprintf(&b, " (job %s)", e.JobID)
	}
	switch {
	case e.Detail != "":
		b.WriteString(": ")
		b.WriteString(e.Detail)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind carried by err, or "" for foreign errors.
func KindOf(err error) Kind {
	var jobErr *Error
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	return ""
}

func kindMessage(kind Kind) string {
	switch kind {
	case KindCapacityExceeded:
		return "application busy"
	case KindNotFound:
		return "no translation job found"
	case KindNotReady:
		return "translation job is not finished"
	case KindJobFailed:
		return "translation job failed"
	case KindEngineFailure:
		return "translation engine failure"
	case KindUnavailable:
		return "job service is not accepting work"
	default:
		return "internal error"
	}
}

func notFound(id ID) error {
	return &Error{Kind: KindNotFound, JobID: id}
}

func internalf(id ID, format string, args ...any) error {
	return &Error{Kind: KindInternal, JobID: id, Detail: fmt.Sprintf(format, args...)}
}
