package httppush_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/connerrors"
	"github.com/illmade-knight/go-connectivity/pkg/httppush"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
	"github.com/illmade-knight/go-connectivity/pkg/publisher"
)

func TestHttpPushFlow_Publish_JSONResponseBecomesAcknowledgement(t *testing.T) {
	var gotMethod, gotContentType, gotCorrelation string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotCorrelation = r.Header.Get("correlation-id")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	target := connection.Target{Address: srv.URL}
	flow := httppush.NewHttpPushFlow(target, httppush.NewFlowConfigDefaults(), srv.Client(), zerolog.Nop())

	msg := mapper.NewTextMessage(connection.Headers{
		"Content-Type":   "application/json",
		"correlation-id": "abc-123",
	}, `{"hello":"world"}`)

	signals, err := flow.Publish(context.Background(), publisher.Request{ExternalMessage: msg})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "abc-123", gotCorrelation)
	assert.Equal(t, `{"hello":"world"}`, string(gotBody))

	require.Len(t, signals, 1)
	ack, ok := signals[0].(httppush.Acknowledgement)
	require.True(t, ok)
	assert.Equal(t, httppush.DiagnosticAckLabel, ack.Label)
	assert.Equal(t, 200, ack.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(ack.Payload))
}

func TestHttpPushFlow_Publish_BinaryResponseIsBase64Encoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte{0x01, 0x02, 0x03})
	}))
	defer srv.Close()

	target := connection.Target{Address: srv.URL}
	flow := httppush.NewHttpPushFlow(target, httppush.NewFlowConfigDefaults(), srv.Client(), zerolog.Nop())

	signals, err := flow.Publish(context.Background(), publisher.Request{
		ExternalMessage: mapper.NewBytesMessage(nil, []byte("payload")),
	})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	ack := signals[0].(httppush.Acknowledgement)
	expected := `"` + base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03}) + `"`
	assert.JSONEq(t, expected, string(ack.Payload))
}

func TestHttpPushFlow_Publish_KnownErrorStatusStillBecomesAcknowledgement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	target := connection.Target{Address: srv.URL}
	flow := httppush.NewHttpPushFlow(target, httppush.NewFlowConfigDefaults(), srv.Client(), zerolog.Nop())

	signals, err := flow.Publish(context.Background(), publisher.Request{ExternalMessage: mapper.NewTextMessage(nil, "x")})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, 404, signals[0].(httppush.Acknowledgement).StatusCode)
}

func TestHttpPushFlow_Publish_UnknownStatusIsMessageSendingFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(799)
	}))
	defer srv.Close()

	target := connection.Target{Address: srv.URL}
	flow := httppush.NewHttpPushFlow(target, httppush.NewFlowConfigDefaults(), srv.Client(), zerolog.Nop())

	_, err := flow.Publish(context.Background(), publisher.Request{ExternalMessage: mapper.NewTextMessage(nil, "x")})
	require.Error(t, err)
	var sendErr *connerrors.MessageSendingFailed
	require.ErrorAs(t, err, &sendErr)
	assert.Contains(t, sendErr.Reason, "799")
}

func TestHttpPushFlow_Publish_OversizedResponseIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	cfg := httppush.NewFlowConfigDefaults()
	cfg.MaxBodyBytes = 8
	target := connection.Target{Address: srv.URL}
	flow := httppush.NewHttpPushFlow(target, cfg, srv.Client(), zerolog.Nop())

	_, err := flow.Publish(context.Background(), publisher.Request{ExternalMessage: mapper.NewTextMessage(nil, "x")})
	require.Error(t, err)
	var sendErr *connerrors.MessageSendingFailed
	require.ErrorAs(t, err, &sendErr)
	assert.Contains(t, sendErr.Reason, "max size")
}

func TestHttpPushFlow_Publish_MessageCommandGetsMatchingResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	target := connection.Target{Address: srv.URL}
	flow := httppush.NewHttpPushFlow(target, httppush.NewFlowConfigDefaults(), srv.Client(), zerolog.Nop())

	signals, err := flow.Publish(context.Background(), publisher.Request{
		ExternalMessage: mapper.NewTextMessage(nil, "x"),
		SignalInfo: mapper.SignalInfo{
			IsMessageCommand: true,
			EntityID:         "thing:1",
			MessageDirective: "SendThingMessage",
		},
	})
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.IsType(t, httppush.Acknowledgement{}, signals[0])
	resp := signals[1].(httppush.MessageCommandResponse)
	assert.Equal(t, "SendThingMessage", resp.Directive)
	assert.Equal(t, "thing:1", resp.EntityID)
	assert.Equal(t, 200, resp.StatusCode)
}
