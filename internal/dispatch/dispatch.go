// ABOUTME: Concurrent fan-out of one validated payload to HTTP targets and subscribers
// ABOUTME: All attempts start together and settle independently; no failure aborts a sibling

package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/compact-relay/internal/registry"
)

// ErrDispatchAborted is returned when orchestration cannot begin, e.g. the
// request context was already dead before any attempt started.
var ErrDispatchAborted = errors.New("dispatch aborted before fan-out")

// Dispatcher fans a payload out to every configured HTTP endpoint and every
// open subscriber. The HTTP client's timeout bounds each outbound call so a
// hung endpoint cannot stall the aggregate indefinitely.
type Dispatcher struct {
	client *http.Client
	logger *slog.Logger
}

// New creates a dispatcher. timeout bounds each individual delivery
// attempt; pass nil logger for default.
func New(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "dispatcher"),
	}
}

// Dispatch delivers payload to the N configured targets and the M given
// subscribers. All N+M attempts are initiated concurrently and the call
// returns only once every attempt has settled; individual failures are
// absorbed into the report, logged with identifying detail, and never
// cancel sibling attempts. N=0 and M=0 are valid and settle immediately.
//
// The returned error is non-nil only for orchestration failures, never for
// per-channel delivery failures.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, targets []string, subs []registry.Subscriber) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrDispatchAborted, err)
	}

	httpOutcomes := make([]*ChannelError, len(targets))
	wsOutcomes := make([]*ChannelError, len(subs))

	var wg sync.WaitGroup
	for i, target := range targets {
		i, target := i, target
		wg.Add(1)
		go func() {
			defer wg.Done()
			httpOutcomes[i] = d.post(ctx, target, payload)
		}()
	}
	for i, sub := range subs {
		i, sub := i, sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			wsOutcomes[i] = d.push(ctx, sub, payload)
		}()
	}
	wg.Wait()

	report := aggregate(httpOutcomes, wsOutcomes)
	d.logFailures(httpOutcomes, wsOutcomes)

	d.logger.Info("broadcast dispatched",
		"http_total", report.HTTP.Total,
		"http_failures", report.HTTP.Failures,
		"ws_total", report.WebSocket.Total,
		"ws_failures", report.WebSocket.Failures,
	)

	return report, nil
}

// post delivers the payload to one HTTP endpoint. Success means the
// transport completed: the endpoint's status code is recorded for
// diagnostics but does not fail the attempt.
func (d *Dispatcher) post(ctx context.Context, target string, payload []byte) *ChannelError {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return &ChannelError{Class: ChannelHTTP, Target: target, Kind: FailureTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return &ChannelError{Class: ChannelHTTP, Target: target, Kind: classify(err), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Debug("endpoint answered non-2xx",
			"endpoint", target,
			"status", resp.StatusCode,
		)
	}
	return nil
}

// push delivers the payload to one subscriber connection.
func (d *Dispatcher) push(ctx context.Context, sub registry.Subscriber, payload []byte) *ChannelError {
	if err := sub.Send(ctx, payload); err != nil {
		return &ChannelError{Class: ChannelWebSocket, Target: sub.ID(), Kind: classify(err), Err: err}
	}
	return nil
}

// classify maps a raw send error onto the failure taxonomy.
func classify(err error) FailureKind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return FailureTimeout
	case isCloseError(err):
		return FailureRemoteRejection
	default:
		return FailureTransport
	}
}

func isCloseError(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}

func (d *Dispatcher) logFailures(httpOutcomes, wsOutcomes []*ChannelError) {
	for _, o := range httpOutcomes {
		if o != nil {
			d.logger.Error("endpoint delivery failed",
				"endpoint", o.Target, "kind", string(o.Kind), "error", o.Err)
		}
	}
	for _, o := range wsOutcomes {
		if o != nil {
			d.logger.Error("subscriber delivery failed",
				"conn_id", o.Target, "kind", string(o.Kind), "error", o.Err)
		}
	}
}
