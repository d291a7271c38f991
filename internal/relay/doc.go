// Package relay implements the compact-relay server: it accepts signed
// compact broadcasts over HTTP, validates them strictly, and fans each
// accepted payload out to every configured HTTP endpoint and every
// connected websocket subscriber.
//
// # HTTP API
//
// The relay exposes the following endpoints:
//
//   - POST /broadcast - Accept a broadcast payload and fan it out
//   - GET <ws_path> - Websocket upgrade for real-time subscribers (default /ws)
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check with subscriber count
//
// # Broadcast flow
//
// An inbound request moves through received -> validated -> dispatching ->
// reported. Validation rejects the whole payload atomically with a 400
// naming every violated field. An accepted payload is delivered, byte for
// byte, to all N configured endpoints and all M subscribers open at that
// instant; the N+M attempts run concurrently and all settle before the
// response is written:
//
//	{"success": true, "results": {
//	    "http": {"total": 3, "failures": 1},
//	    "websocket": {"total": 2, "failures": 0}}}
//
// Partial delivery failure is reported in the counts, never in the outer
// status: the request succeeds whenever it was accepted and dispatched.
//
// # Subscribers
//
// Each upgraded connection is registered until it closes or errors; a
// subscriber joining mid-dispatch may or may not receive that dispatch's
// message, which is accepted non-determinism. Subscribers are listen-only.
//
// # Key Files
//
//   - relay.go: Relay struct, initialization, Run/Shutdown
//   - api.go: POST /broadcast handler and response envelope
//   - ws.go: websocket upgrade, subscriber connection lifecycle
package relay
