package metrics

import "time"

// ErrorKind is one of the stable error taxonomy identifiers used in output.
type ErrorKind string

const (
	ErrTimeout  ErrorKind = "timeout"
	ErrConnect  ErrorKind = "connect"
	ErrReset    ErrorKind = "reset"
	ErrDNS      ErrorKind = "dns"
	ErrTLS      ErrorKind = "tls"
	ErrProtocol ErrorKind = "protocol"
	ErrCanceled ErrorKind = "canceled"
	ErrOther    ErrorKind = "other"
)

// ResultKind discriminates Outcome.Result.
type ResultKind int

const (
	ResultHTTPResponse ResultKind = iota
	ResultNetworkError
	ResultTimeout
	ResultCanceled
)

// Outcome is the unit a worker emits to the Aggregator after running one
// scenario iteration (possibly several requests in a chain, but metrics are
// recorded per request).
type Outcome struct {
	ScenarioIndex int
	RequestName   string

	ScheduledAt time.Time // zero in closed-loop mode
	StartedAt   time.Time
	FinishedAt  time.Time

	Kind       ResultKind
	StatusCode int
	BytesIn    int64
	ErrKind    ErrorKind

	// CheckResults maps check name to pass/fail for this outcome.
	CheckResults map[string]bool

	// Extracted holds any variables this outcome's extraction rules
	// produced, already merged into the VU's ChainContext by the time this
	// outcome reaches the aggregator (the aggregator never mutates chain
	// state, only records metrics).
	Extracted map[string]string
}

// Success reports whether the outcome counts as a success under the given
// strictness and check-failure policy.
func (o Outcome) Success(countNon2xxAsError, failOnCheck bool) bool {
	switch o.Kind {
	case ResultNetworkError, ResultTimeout, ResultCanceled:
		return false
	}

	if countNon2xxAsError && (o.StatusCode < 200 || o.StatusCode >= 400) {
		return false
	}

	if failOnCheck {
		for _, passed := range o.CheckResults {
			if !passed {
				return false
			}
		}
	}

	return true
}

// WallclockLatency is finished - scheduled (includes queue wait); it only
// makes sense in open-loop mode where ScheduledAt is populated.
func (o Outcome) WallclockLatency() time.Duration {
	if o.ScheduledAt.IsZero() {
		return o.FinishedAt.Sub(o.StartedAt)
	}
	return o.FinishedAt.Sub(o.ScheduledAt)
}

// CorrectedLatency is finished - started (the server's actual service
// time), immune to coordinated omission.
func (o Outcome) CorrectedLatency() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// QueueLatency is started - scheduled, zero outside open-loop mode.
func (o Outcome) QueueLatency() time.Duration {
	if o.ScheduledAt.IsZero() {
		return 0
	}
	return o.StartedAt.Sub(o.ScheduledAt)
}
