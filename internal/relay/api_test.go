// ABOUTME: Tests for the POST /broadcast handler
// ABOUTME: Verifies acceptance, schema rejection, and per-channel failure reporting

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/compact-relay/internal/config"
)

func newTestRelay(t *testing.T, endpoints []string) *Relay {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{HTTPAddr: "127.0.0.1:0", WSPath: "/ws"},
		Endpoints: endpoints,
		Dispatch:  config.DispatchConfig{Timeout: 2 * time.Second},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger)
}

// testSub is an in-process subscriber that records delivered payloads.
type testSub struct {
	id        string
	received  atomic.Int64
	delivered chan []byte // buffered size 8, acts as delivery log
	fail      bool
}

func newTestSub(id string) *testSub {
	return &testSub{id: id, delivered: make(chan []byte, 8)}
}

func (s *testSub) ID() string { return s.id }

func (s *testSub) Send(_ context.Context, payload []byte) error {
	s.received.Add(1)
	if s.fail {
		return fmt.Errorf("send on closed connection")
	}
	select {
	case s.delivered <- payload:
	default:
	}
	return nil
}

func (s *testSub) Close() error { return nil }

// validBroadcastJSON builds a payload that satisfies every schema rule.
func validBroadcastJSON() []byte {
	addr := func(digit string) string { return "0x" + strings.Repeat(digit, 40) }
	return []byte(fmt.Sprintf(`{
		"chainId": "10",
		"compact": {
			"arbiter": %q,
			"sponsor": %q,
			"nonce": "1",
			"id": "0xdeadbeef",
			"expires": "1735689600",
			"amount": "1000000000000000000",
			"mandate": {
				"chainId": 8453,
				"tribunal": %q,
				"recipient": %q,
				"expires": "1735689700",
				"token": %q,
				"minimumAmount": "990000000000000000",
				"baselinePriorityFee": "1000000",
				"scalingFactor": "1000000000100000000",
				"salt": %q
			}
		},
		"sponsorSignature": null,
		"allocatorSignature": %q,
		"context": {
			"dispensation": "12345",
			"dispensationUSD": "$0.42",
			"spotOutputAmount": "1000000",
			"quoteOutputAmountDirect": "999000",
			"quoteOutputAmountNet": "998000",
			"witnessTypeString": "Mandate(uint256 chainId,address tribunal)",
			"witnessHash": %q
		}
	}`,
		addr("1"), addr("2"), addr("3"), addr("4"), addr("5"),
		"0x"+strings.Repeat("cc", 32),
		"0x"+strings.Repeat("ab", 64),
		"0x"+strings.Repeat("bb", 32),
	))
}

func postBroadcast(t *testing.T, rl *Relay, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/broadcast", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	rl.handleBroadcast(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHandleBroadcast_ValidPayloadDispatches(t *testing.T) {
	var hits atomic.Int64
	var gotBody atomic.Value
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
	}))
	t.Cleanup(endpoint.Close)

	rl := newTestRelay(t, []string{endpoint.URL})
	sub := newTestSub("sub-1")
	rl.registry.Add(sub)

	payload := validBroadcastJSON()
	rec := postBroadcast(t, rl, payload)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, true, resp["success"])

	results := resp["results"].(map[string]any)
	httpRes := results["http"].(map[string]any)
	wsRes := results["websocket"].(map[string]any)
	assert.Equal(t, float64(1), httpRes["total"])
	assert.Equal(t, float64(0), httpRes["failures"])
	assert.Equal(t, float64(1), wsRes["total"])
	assert.Equal(t, float64(0), wsRes["failures"])

	// Endpoint and subscriber both got the caller's exact bytes.
	assert.Equal(t, int64(1), hits.Load())
	assert.Equal(t, payload, gotBody.Load().([]byte))
	select {
	case delivered := <-sub.delivered:
		assert.Equal(t, payload, delivered)
	default:
		t.Fatal("subscriber did not receive the payload")
	}
}

func TestHandleBroadcast_SchemaRejectionNamesFields(t *testing.T) {
	var hits atomic.Int64
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(endpoint.Close)

	rl := newTestRelay(t, []string{endpoint.URL})

	bad := bytes.Replace(validBroadcastJSON(), []byte(`"chainId": "10"`), []byte(`"chainId": "not-numeric"`), 1)
	rec := postBroadcast(t, rl, bad)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Invalid payload", resp["error"])

	details, ok := resp["details"].(map[string]any)
	require.True(t, ok, "details should enumerate violated fields")
	assert.Contains(t, details, "chainId")

	// Rejection is terminal: nothing was dispatched.
	assert.Equal(t, int64(0), hits.Load())
}

func TestHandleBroadcast_InvalidJSON(t *testing.T) {
	rl := newTestRelay(t, nil)

	rec := postBroadcast(t, rl, []byte("not json"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Invalid payload", resp["error"])
}

func TestHandleBroadcast_MethodNotAllowed(t *testing.T) {
	rl := newTestRelay(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/broadcast", nil)
	rec := httptest.NewRecorder()
	rl.handleBroadcast(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleBroadcast_NoChannelsStillSucceeds(t *testing.T) {
	rl := newTestRelay(t, nil)

	rec := postBroadcast(t, rl, validBroadcastJSON())

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, true, resp["success"])

	results := resp["results"].(map[string]any)
	httpRes := results["http"].(map[string]any)
	wsRes := results["websocket"].(map[string]any)
	assert.Equal(t, float64(0), httpRes["total"])
	assert.Equal(t, float64(0), httpRes["failures"])
	assert.Equal(t, float64(0), wsRes["total"])
	assert.Equal(t, float64(0), wsRes["failures"])
}

func TestHandleBroadcast_PartialFailureReportsCounts(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(healthy.Close)

	// A closed server yields a transport failure for its URL.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	rl := newTestRelay(t, []string{healthy.URL, deadURL})

	failing := newTestSub("sub-failing")
	failing.fail = true
	rl.registry.Add(failing)
	rl.registry.Add(newTestSub("sub-healthy"))

	rec := postBroadcast(t, rl, validBroadcastJSON())

	require.Equal(t, http.StatusOK, rec.Code, "partial failure must not fail the request")
	resp := decodeResponse(t, rec)
	assert.Equal(t, true, resp["success"])

	results := resp["results"].(map[string]any)
	httpRes := results["http"].(map[string]any)
	wsRes := results["websocket"].(map[string]any)
	assert.Equal(t, float64(2), httpRes["total"])
	assert.Equal(t, float64(1), httpRes["failures"])
	assert.Equal(t, float64(2), wsRes["total"])
	assert.Equal(t, float64(1), wsRes["failures"])
}

func TestHandleReady_ReportsSubscriberCount(t *testing.T) {
	rl := newTestRelay(t, nil)
	rl.registry.Add(newTestSub("sub-1"))
	rl.registry.Add(newTestSub("sub-2"))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	rl.handleReady(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2 subscribers")
}

func TestHandleHealth(t *testing.T) {
	rl := newTestRelay(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	rl.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
