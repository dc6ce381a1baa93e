package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cl "github.com/illmade-knight/go-connectivity/pkg/client"
	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/connerrors"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
)

// recordingSink captures every reply sent to it, the way a test harness
// stands in for a real gRPC stream or channel-backed origin.
type recordingSink struct {
	replies chan any
}

func newRecordingSink() *recordingSink {
	return &recordingSink{replies: make(chan any, 16)}
}

func (s *recordingSink) Send(reply any) {
	s.replies <- reply
}

func (s *recordingSink) awaitReply(t *testing.T, timeout time.Duration) any {
	t.Helper()
	select {
	case r := <-s.replies:
		return r
	case <-time.After(timeout):
		t.Fatal("timed out waiting for reply")
		return nil
	}
}

// fakeTransport is a Transport whose hooks are controllable per test.
type fakeTransport struct {
	connect    func(ctx context.Context, conn connection.Connection) error
	disconnect func(ctx context.Context, conn connection.Connection) error
	test       func(ctx context.Context, conn connection.Connection) error
}

func (f *fakeTransport) DoConnect(ctx context.Context, conn connection.Connection) error {
	if f.connect == nil {
		return nil
	}
	return f.connect(ctx, conn)
}

func (f *fakeTransport) DoDisconnect(ctx context.Context, conn connection.Connection) error {
	if f.disconnect == nil {
		return nil
	}
	return f.disconnect(ctx, conn)
}

func (f *fakeTransport) DoTestConnection(ctx context.Context, conn connection.Connection) error {
	if f.test == nil {
		return nil
	}
	return f.test(ctx, conn)
}

func (f *fakeTransport) SourceMetrics(connection.Connection) metrics.SourceMetrics { return nil }
func (f *fakeTransport) TargetMetrics(connection.Connection) metrics.TargetMetrics { return nil }

// alwaysReachableCache short-circuits the TCP pre-check so tests that
// exercise a controllable fakeTransport aren't also at the mercy of
// whatever happens to be listening on a test host:port.
type alwaysReachableCache struct{}

func (alwaysReachableCache) Get(ctx context.Context, hostPort string) (bool, bool) { return true, true }
func (alwaysReachableCache) Put(ctx context.Context, hostPort string, reachable bool) {}

func testConnection(id string) connection.Connection {
	return connection.Connection{
		ID:                id,
		Endpoint:          connection.Endpoint{Host: "localhost", Port: 1},
		DesiredStatus:     connection.DesiredStatusOpen,
		ProcessorPoolSize: 1,
	}
}

func newTestClient(t *testing.T, transport *fakeTransport, stateTimeout time.Duration) *cl.BaseClient {
	t.Helper()
	c := cl.NewBaseClient("conn-1", cl.Config{
		Transport:         transport,
		MapperFactory:     func(ctx context.Context, connectionID string, mc *connection.MappingContext) (mapper.Mapper, error) { return nil, nil },
		Registry:          metrics.New(nil),
		ReachabilityCache: alwaysReachableCache{},
		StateTimeout:      stateTimeout,
		InitTimeout:       time.Hour,
		Logger:            zerolog.Nop(),
	})
	return c
}

func runClient(t *testing.T, c *cl.BaseClient) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(cancel)
	return cancel
}

func TestBaseClient_CreateThenOpen_ReachesConnected(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestClient(t, transport, time.Second)
	runClient(t, c)

	sink := newRecordingSink()
	c.Send(cl.CreateConnection{Connection: testConnection("conn-1"), Origin: sink})

	first := sink.awaitReply(t, time.Second)
	require.IsType(t, cl.Success{}, first)
	assert.Equal(t, cl.StateUnknown, first.(cl.Success).State)

	require.Eventually(t, func() bool {
		return c.State() == cl.StateConnected
	}, time.Second, 10*time.Millisecond)
}

func TestBaseClient_InvalidConnection_RejectedWithoutTransitioning(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestClient(t, transport, time.Second)
	runClient(t, c)

	sink := newRecordingSink()
	c.Send(cl.CreateConnection{Connection: connection.Connection{ID: ""}, Origin: sink})

	reply := sink.awaitReply(t, time.Second)
	require.IsType(t, cl.Failure{}, reply)
	assert.Equal(t, cl.StateUnknown, c.State())
}

func TestBaseClient_ConnectFailure_ReportsFailureAndDisconnects(t *testing.T) {
	wantErr := errors.New("dial refused")
	transport := &fakeTransport{
		connect: func(ctx context.Context, conn connection.Connection) error { return wantErr },
	}
	c := newTestClient(t, transport, time.Second)
	runClient(t, c)

	sink := newRecordingSink()
	conn := testConnection("conn-1")
	conn.Endpoint = connection.Endpoint{Host: "127.0.0.1", Port: 65535}
	c.Send(cl.CreateConnection{Connection: conn, Origin: sink})

	_ = sink.awaitReply(t, time.Second) // Success{Unknown} for the create

	require.Eventually(t, func() bool {
		return c.State() == cl.StateDisconnected
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBaseClient_StateTimeout_WhileConnecting_ReportsConnectionFailed(t *testing.T) {
	block := make(chan struct{})
	transport := &fakeTransport{
		connect: func(ctx context.Context, conn connection.Connection) error {
			<-block
			return nil
		},
	}
	c := newTestClient(t, transport, 30*time.Millisecond)
	runClient(t, c)
	t.Cleanup(func() { close(block) })

	sink := newRecordingSink()
	conn := testConnection("conn-1")
	conn.Endpoint = connection.Endpoint{Host: "127.0.0.1", Port: 9}
	c.Send(cl.CreateConnection{Connection: conn, Origin: sink})

	_ = sink.awaitReply(t, time.Second) // Success{Unknown} for the create

	reply := sink.awaitReply(t, 2*time.Second)
	failure, ok := reply.(cl.Failure)
	require.True(t, ok, "expected a Failure reply after the state timeout, got %T", reply)
	var failed *connerrors.ConnectionFailed
	assert.True(t, errors.As(failure.Err, &failed))
}

func TestBaseClient_UnhandledSignalInIllegalState_RepliesSignalInIllegalState(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestClient(t, transport, time.Second)
	runClient(t, c)

	createSink := newRecordingSink()
	c.Send(cl.CreateConnection{Connection: testConnection("conn-1"), Origin: createSink})
	_ = createSink.awaitReply(t, time.Second)

	require.Eventually(t, func() bool {
		return c.State() == cl.StateConnected
	}, time.Second, 10*time.Millisecond)

	testSink := newRecordingSink()
	c.Send(cl.TestConnection{Connection: testConnection("conn-1"), Origin: testSink})

	reply := testSink.awaitReply(t, time.Second)
	failure, ok := reply.(cl.Failure)
	require.True(t, ok)
	var illegal *connerrors.SignalInIllegalState
	assert.True(t, errors.As(failure.Err, &illegal))
	assert.Equal(t, "connected", illegal.Operation)
}

func TestBaseClient_RetrieveConnectionMetrics_AnswerableInAnyState(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestClient(t, transport, time.Second)
	runClient(t, c)

	sink := newRecordingSink()
	c.Send(cl.RetrieveConnectionMetrics{Origin: sink})

	reply := sink.awaitReply(t, time.Second)
	resp, ok := reply.(cl.RetrieveConnectionMetricsResponse)
	require.True(t, ok)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, resp.Targets)
}

func TestBaseClient_ModifyConnectionWhileConnected_DrainsThenReconnects(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestClient(t, transport, time.Second)
	runClient(t, c)

	createSink := newRecordingSink()
	c.Send(cl.CreateConnection{Connection: testConnection("conn-1"), Origin: createSink})
	_ = createSink.awaitReply(t, time.Second)

	require.Eventually(t, func() bool {
		return c.State() == cl.StateConnected
	}, time.Second, 10*time.Millisecond)

	modifySink := newRecordingSink()
	modified := testConnection("conn-1")
	modified.ProcessorPoolSize = 4
	c.Send(cl.ModifyConnection{Connection: modified, Origin: modifySink})

	require.Eventually(t, func() bool {
		return c.State() == cl.StateConnected
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, c.Snapshot().Connection.ProcessorPoolSize)
}
