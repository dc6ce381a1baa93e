// Package httppush implements the HTTP-push Target specialization
// described in spec.md §4.5: turning an outbound ExternalMessage into
// an *http.Request, and the HTTP response back into an Acknowledgement
// (and, for MessageCommands, a matching command-response).
package httppush

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/connerrors"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
	"github.com/illmade-knight/go-connectivity/pkg/publisher"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	defaultMethod       = http.MethodPost
)

// ContentTypeHeader is the well-known header key HttpPushFlow both
// reads (from the outbound message, to set the request's content type)
// and writes (on the response it hands back).
const ContentTypeHeader = "Content-Type"

// FlowConfig configures one HttpPushFlow. NewHttpPushFlow fills zero
// values from the package's built-in defaults; environment overrides
// apply only to a FlowConfig built with NewFlowConfigDefaults.
type FlowConfig struct {
	Method       string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// NewFlowConfigDefaults mirrors
// messagepipeline.NewGooglePubsubProducerDefaults: sensible defaults,
// overridable via environment variables.
func NewFlowConfigDefaults() FlowConfig {
	cfg := FlowConfig{
		Method:       defaultMethod,
		Timeout:      defaultTimeout,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
	if v := os.Getenv("HTTPPUSH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("HTTPPUSH_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxBodyBytes = n
		}
	}
	return cfg
}

// HttpPushFlow is the publisher.Flow implementation for one HTTP-push
// Target. One instance is built per Target by pkg/publisher's
// FlowFactory.
type HttpPushFlow struct {
	target connection.Target
	cfg    FlowConfig
	client *http.Client
	logger zerolog.Logger
}

// NewHttpPushFlow constructs a flow bound to target.Address.
func NewHttpPushFlow(target connection.Target, cfg FlowConfig, client *http.Client, logger zerolog.Logger) *HttpPushFlow {
	if cfg.Method == "" {
		cfg.Method = defaultMethod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HttpPushFlow{
		target: target,
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "HttpPushFlow").Str("target", target.Address).Logger(),
	}
}

// Publish issues the HTTP request and turns the response into the
// signals a Pipeline hands back to the originator, per spec.md §4.5.
func (f *HttpPushFlow) Publish(ctx context.Context, req publisher.Request) ([]mapper.Signal, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	msg := req.ExternalMessage
	body := requestBody(msg)
	httpReq, err := http.NewRequestWithContext(reqCtx, f.cfg.Method, f.target.Address, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building http request: %w", err)
	}
	for k, v := range msg.Headers {
		if k == ContentTypeHeader {
			continue
		}
		httpReq.Header.Set(k, v)
	}
	if ct, ok := msg.ContentType(); ok {
		httpReq.Header.Set(ContentTypeHeader, ct)
	} else if msg.IsTextMessage() {
		httpReq.Header.Set(ContentTypeHeader, "text/plain; charset=utf-8")
	}

	f.logger.Debug().Str("uri", stripUserInfo(f.target.Address)).Str("method", f.cfg.Method).Msg("Sending HTTP push request.")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &connerrors.MessageSendingFailed{Reason: "http request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	f.logger.Debug().Str("uri", stripUserInfo(f.target.Address)).Int("status", resp.StatusCode).Msg("Received HTTP push response.")

	if !isKnownStatusCode(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
		return nil, &connerrors.MessageSendingFailed{
			Reason: fmt.Sprintf("unknown HTTP status %d", resp.StatusCode),
		}
	}

	limit := f.cfg.MaxBodyBytes
	if req.SignalInfo.IsMessageCommand {
		if req.MaxTotalMessageSize > 0 {
			limit = req.MaxTotalMessageSize
		}
	} else if req.AckSizeQuota > 0 {
		limit = req.AckSizeQuota
	}

	respBody, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, &connerrors.MessageSendingFailed{Reason: "response body exceeded max size", Cause: err}
	}

	return f.buildSignals(req, resp, respBody), nil
}

// buildSignals implements spec.md §4.5 step 5: always an
// Acknowledgement; additionally a matching MessageCommandResponse when
// the original signal was a MessageCommand.
func (f *HttpPushFlow) buildSignals(req publisher.Request, resp *http.Response, body []byte) []mapper.Signal {
	contentType := resp.Header.Get(ContentTypeHeader)
	payload := decodeBody(contentType, body)

	headers := make(connection.Headers, len(resp.Header))
	for k := range resp.Header {
		if k == ContentTypeHeader {
			continue
		}
		headers[k] = resp.Header.Get(k)
	}
	if contentType != "" {
		headers[ContentTypeHeader] = contentType
	}

	label := req.AutoAckLabel
	if label == "" {
		label = f.target.AutoAckLabel
	}
	if label == "" {
		label = DiagnosticAckLabel
	}

	signals := []mapper.Signal{Acknowledgement{
		Label:      label,
		EntityID:   req.SignalInfo.EntityID,
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Payload:    payload,
	}}

	if req.SignalInfo.IsMessageCommand {
		signals = append(signals, MessageCommandResponse{
			Directive:  req.SignalInfo.MessageDirective,
			EntityID:   req.SignalInfo.EntityID,
			StatusCode: resp.StatusCode,
			Headers:    headers,
			Payload:    payload,
		})
	}
	return signals
}

// requestBody picks the text or binary payload per spec.md §4.5 step 2.
func requestBody(msg mapper.ExternalMessage) []byte {
	if msg.IsTextMessage() {
		return []byte(msg.TextPayload)
	}
	return msg.Bytes
}

// stripUserInfo removes any embedded credentials from uri before it is
// logged, per spec.md §4.5 step 1 of response handling ("strip
// user-info from the echoed request URI before logging").
func stripUserInfo(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	parsed.User = nil
	return parsed.String()
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	limited := io.LimitReader(r, max+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("body exceeds %d bytes", max)
	}
	return data, nil
}
