package signalbus_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/illmade-knight/go-connectivity/pkg/signalbus"
)

const testProjectID = "test-project"

func newPstestBus(t *testing.T) (*signalbus.PubsubBus, *pstest.Server, string) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	opts := []option.ClientOption{option.WithGRPCConn(conn)}
	ctx := context.Background()

	client, err := pubsub.NewClient(ctx, testProjectID, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "outbound-signals")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "inbound-conn-1", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	bus, err := signalbus.NewPubsubBus(ctx, signalbus.PubsubBusConfig{
		ProjectID:      testProjectID,
		PublishTopicID: "outbound-signals",
		InboundPrefix:  "inbound-",
		ClientOptions:  opts,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, srv, "conn-1"
}

func TestPubsubBus_PublishAndSubscribeRoundTrip(t *testing.T) {
	bus, _, connID := newPstestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inbound, err := bus.Subscribe(ctx, connID)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, connID, []byte("hello"), map[string]string{"k": "v"}))

	select {
	case msg := <-inbound:
		require.Equal(t, connID, msg.ConnectionID)
		require.Equal(t, []byte("hello"), msg.Payload)
		require.Equal(t, "v", msg.Attributes["k"])
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for inbound signal")
	}
}

func TestPubsubBus_SubscribeUnknownConnectionFails(t *testing.T) {
	bus, _, _ := newPstestBus(t)
	_, err := bus.Subscribe(context.Background(), "no-such-connection")
	require.Error(t, err)
}
