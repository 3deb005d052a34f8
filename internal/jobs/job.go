// Package jobs runs translations asynchronously: it issues job ids, keeps an
// expiring registry of job state, executes work on a bounded pool and answers
// status and result queries without blocking on the engine.
package jobs

import (
	"strings"
	"time"

	"horse.fit/mtgate/internal/locale"
	"horse.fit/mtgate/internal/translation"
)

// ID is an opaque job identifier.
type ID string

func (id ID) String() string {
	return string(id)
}

// State is the internal lifecycle state of a job.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// AsyncStatus is the externally visible state; pending is reported as running.
type AsyncStatus string

const (
	StatusRunning AsyncStatus = "running"
	StatusDone    AsyncStatus = "done"
	StatusFailed  AsyncStatus = "failed"
)

// Status answers a status query.
type Status struct {
	Status AsyncStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

const (
	maxDetailLength = 4000
	defaultDetail   = "translation failed without detail"
)

// Outcome is the terminal value of a job: exactly one of Response or Detail is set.
type Outcome struct {
	Response *translation.Response
	Detail   string
}

// Succeeded builds a successful outcome. A nil response is recorded as a failure.
func Succeeded(resp *translation.Response) Outcome {
	if resp == nil {
		return Failed("translation engine returned no result")
	}
	return Outcome{Response: resp}
}

// Failed builds a failed outcome. The detail is sanitized and never empty.
func Failed(detail string) Outcome {
	detail = sanitizeDetail(detail)
	if detail == "" {
		detail = defaultDetail
	}
	return Outcome{Detail: detail}
}

func (o Outcome) state() State {
	if o.Response != nil {
		return StateDone
	}
	return StateFailed
}

// Job is a point-in-time snapshot of a registry entry.
type Job struct {
	ID          ID
	SubmittedAt time.Time
	ExpiresAt   time.Time
	State       State
	Outcome     *Outcome
	Source      locale.Locale
	Target      locale.Locale
	Segments    int
}

// sanitizeDetail drops control characters (except whitespace) and truncates.
func sanitizeDetail(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}

	out := b.String()
	if len(out) > maxDetailLength {
		cut := maxDetailLength
		for cut > 0 && !isRuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "...(truncated)"
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
