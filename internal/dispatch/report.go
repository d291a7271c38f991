// ABOUTME: Delivery report types and the per-channel failure taxonomy
// ABOUTME: Aggregation is a pure reduction over settled channel outcomes

package dispatch

import "fmt"

// ChannelClass identifies which of the two fan-out channel classes an
// attempt belongs to.
type ChannelClass string

const (
	ChannelHTTP      ChannelClass = "http"
	ChannelWebSocket ChannelClass = "websocket"
)

// FailureKind classifies the cause of a failed delivery attempt.
type FailureKind string

const (
	// FailureTimeout: the attempt exceeded its per-channel deadline.
	FailureTimeout FailureKind = "timeout"
	// FailureTransport: the send itself errored (dial, reset, closed conn).
	FailureTransport FailureKind = "transport"
	// FailureRemoteRejection: the peer actively refused the frame
	// (websocket close handshake during the send).
	FailureRemoteRejection FailureKind = "remote_rejection"
)

// ChannelError describes one failed delivery attempt with enough context
// to identify the failing endpoint or connection in diagnostics.
type ChannelError struct {
	Class  ChannelClass
	Target string // endpoint URL or subscriber connection ID
	Kind   FailureKind
	Err    error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s delivery to %s failed (%s): %v", e.Class, e.Target, e.Kind, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ChannelReport counts attempts and failures for one channel class.
type ChannelReport struct {
	Total    int `json:"total"`
	Failures int `json:"failures"`
}

// Report is the aggregated outcome of one fan-out: exact per-channel
// counts. Partial failure lives here, never in the outer response status.
type Report struct {
	HTTP      ChannelReport `json:"http"`
	WebSocket ChannelReport `json:"websocket"`
}

// aggregate reduces settled outcomes into per-channel counts. A nil slot
// is a successful attempt. Zero attempts on a channel class yields a
// zero-count report for that class.
func aggregate(httpOutcomes, wsOutcomes []*ChannelError) Report {
	return Report{
		HTTP:      reduce(httpOutcomes),
		WebSocket: reduce(wsOutcomes),
	}
}

func reduce(outcomes []*ChannelError) ChannelReport {
	rep := ChannelReport{Total: len(outcomes)}
	for _, o := range outcomes {
		if o != nil {
			rep.Failures++
		}
	}
	return rep
}
