// ABOUTME: HTTP API handler for POST /broadcast
// ABOUTME: Validates the payload, fans it out, and reports per-channel delivery counts

package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/2389/compact-relay/internal/dispatch"
	"github.com/2389/compact-relay/internal/message"
)

// maxBroadcastBody bounds the request body; a compact with context fits in
// a few KB, so 1 MiB leaves generous headroom.
const maxBroadcastBody = 1 << 20

// broadcastResponse is the JSON envelope for every /broadcast outcome.
type broadcastResponse struct {
	Success bool             `json:"success"`
	Results *dispatch.Report `json:"results,omitempty"`
	Error   string           `json:"error,omitempty"`
	Details any              `json:"details,omitempty"`
}

// handleBroadcast handles POST /broadcast requests.
//
// Request lifecycle: received -> validated -> dispatching -> reported.
// A schema rejection terminates at 400 with no dispatch attempted; an
// orchestration failure terminates at 500. Per-channel delivery failures
// never fail the request: they are reported in-band via the counts.
func (rl *Relay) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBroadcastBody))
	if err != nil {
		rl.sendJSON(w, http.StatusBadRequest, broadcastResponse{
			Error:   "Invalid payload",
			Details: "reading request body: " + err.Error(),
		})
		return
	}

	msg, err := message.Decode(body)
	if err != nil {
		rl.sendJSON(w, http.StatusBadRequest, broadcastResponse{
			Error:   "Invalid payload",
			Details: err.Error(),
		})
		return
	}

	if err := msg.Validate(); err != nil {
		rl.logger.Debug("broadcast rejected", "error", err)
		rl.sendJSON(w, http.StatusBadRequest, broadcastResponse{
			Error:   "Invalid payload",
			Details: validationDetails(err),
		})
		return
	}

	// Fan out the caller's exact bytes so endpoints and subscribers see
	// the payload verbatim, not a re-marshaled copy.
	subs := rl.registry.Snapshot()
	report, err := rl.dispatcher.Dispatch(r.Context(), body, rl.config.Endpoints, subs)
	if err != nil {
		rl.logger.Error("broadcast dispatch failed", "error", err)
		rl.sendJSON(w, http.StatusInternalServerError, broadcastResponse{
			Error:   "Failed to broadcast message",
			Details: err.Error(),
		})
		return
	}

	rl.sendJSON(w, http.StatusOK, broadcastResponse{
		Success: true,
		Results: &report,
	})
}

// validationDetails extracts the per-field violation map when available so
// the 400 response enumerates every offending path.
func validationDetails(err error) any {
	var errs validation.Errors
	if errors.As(err, &errs) {
		return errs
	}
	return err.Error()
}

func (rl *Relay) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
