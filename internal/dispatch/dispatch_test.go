// ABOUTME: Tests for settle-all fan-out dispatch and report aggregation
// ABOUTME: Exercises partial failure, zero-channel dispatch, and transport-level semantics

package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/compact-relay/internal/registry"
)

type stubSub struct {
	id   string
	err  error
	sent atomic.Int64
}

func (s *stubSub) ID() string { return s.id }

func (s *stubSub) Send(_ context.Context, _ []byte) error {
	s.sent.Add(1)
	return s.err
}

func (s *stubSub) Close() error { return nil }

func newEndpoint(t *testing.T, status int, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// unreachableURL returns a URL nothing listens on.
func unreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	return url
}

func TestDispatch_PartialFailureIsCounted(t *testing.T) {
	d := New(2*time.Second, nil)

	ok1 := newEndpoint(t, http.StatusOK, nil)
	ok2 := newEndpoint(t, http.StatusOK, nil)
	targets := []string{ok1.URL, unreachableURL(t), ok2.URL}

	subs := []registry.Subscriber{
		&stubSub{id: "sub-1"},
		&stubSub{id: "sub-2"},
	}

	report, err := d.Dispatch(context.Background(), []byte(`{"k":"v"}`), targets, subs)
	require.NoError(t, err)

	assert.Equal(t, ChannelReport{Total: 3, Failures: 1}, report.HTTP)
	assert.Equal(t, ChannelReport{Total: 2, Failures: 0}, report.WebSocket)
}

func TestDispatch_ZeroChannelsSucceeds(t *testing.T) {
	d := New(time.Second, nil)

	report, err := d.Dispatch(context.Background(), []byte(`{}`), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ChannelReport{Total: 0, Failures: 0}, report.HTTP)
	assert.Equal(t, ChannelReport{Total: 0, Failures: 0}, report.WebSocket)
}

func TestDispatch_Non2xxStillCountsAsDelivered(t *testing.T) {
	d := New(time.Second, nil)

	rejecting := newEndpoint(t, http.StatusForbidden, nil)
	erroring := newEndpoint(t, http.StatusInternalServerError, nil)

	report, err := d.Dispatch(context.Background(), []byte(`{}`), []string{rejecting.URL, erroring.URL}, nil)
	require.NoError(t, err)

	// Transport completed, so the attempts delivered regardless of status.
	assert.Equal(t, ChannelReport{Total: 2, Failures: 0}, report.HTTP)
}

func TestDispatch_FailingSubscriberIsCountedNotFatal(t *testing.T) {
	d := New(time.Second, nil)

	subs := []registry.Subscriber{
		&stubSub{id: "healthy"},
		&stubSub{id: "closing", err: errors.New("use of closed network connection")},
	}

	report, err := d.Dispatch(context.Background(), []byte(`{}`), nil, subs)
	require.NoError(t, err)

	assert.Equal(t, ChannelReport{Total: 2, Failures: 1}, report.WebSocket)
}

func TestDispatch_SlowChannelDoesNotSuppressSiblings(t *testing.T) {
	d := New(300*time.Millisecond, nil)

	var fastHits atomic.Int64
	fast := newEndpoint(t, http.StatusOK, &fastHits)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(slow.Close)

	sub := &stubSub{id: "sub-1"}

	start := time.Now()
	report, err := d.Dispatch(context.Background(), []byte(`{}`), []string{slow.URL, fast.URL}, []registry.Subscriber{sub})
	require.NoError(t, err)

	// The hung endpoint times out on its own bound; everything else settled.
	assert.Equal(t, ChannelReport{Total: 2, Failures: 1}, report.HTTP)
	assert.Equal(t, ChannelReport{Total: 1, Failures: 0}, report.WebSocket)
	assert.Equal(t, int64(1), fastHits.Load())
	assert.Equal(t, int64(1), sub.sent.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDispatch_AllChannelsReceivePayload(t *testing.T) {
	d := New(time.Second, nil)

	var hits atomic.Int64
	e1 := newEndpoint(t, http.StatusOK, &hits)
	e2 := newEndpoint(t, http.StatusOK, &hits)

	s1 := &stubSub{id: "a"}
	s2 := &stubSub{id: "b"}

	_, err := d.Dispatch(context.Background(), []byte(`{"x":1}`), []string{e1.URL, e2.URL}, []registry.Subscriber{s1, s2})
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Load())
	assert.Equal(t, int64(1), s1.sent.Load())
	assert.Equal(t, int64(1), s2.sent.Load())
}

func TestDispatch_CanceledContextAborts(t *testing.T) {
	d := New(time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, []byte(`{}`), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatchAborted)
}

func TestAggregate_CountsPerChannel(t *testing.T) {
	fail := &ChannelError{Class: ChannelHTTP, Target: "http://x", Kind: FailureTransport, Err: errors.New("refused")}

	report := aggregate(
		[]*ChannelError{nil, fail, nil},
		[]*ChannelError{nil, nil},
	)

	assert.Equal(t, ChannelReport{Total: 3, Failures: 1}, report.HTTP)
	assert.Equal(t, ChannelReport{Total: 2, Failures: 0}, report.WebSocket)
}

func TestClassify_FailureKinds(t *testing.T) {
	assert.Equal(t, FailureTimeout, classify(context.DeadlineExceeded))
	assert.Equal(t, FailureTransport, classify(errors.New("connection refused")))
}

func TestChannelError_MessageIdentifiesTarget(t *testing.T) {
	err := &ChannelError{
		Class:  ChannelWebSocket,
		Target: "conn-42",
		Kind:   FailureTransport,
		Err:    errors.New("broken pipe"),
	}
	assert.Contains(t, err.Error(), "conn-42")
	assert.Contains(t, err.Error(), "transport")
}
