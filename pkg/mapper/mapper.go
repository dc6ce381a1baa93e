// Package mapper declares the MessageMapper contract consumed by
// pkg/client, per spec.md §4.6. The mapper itself — the transform
// between wire bytes and internal signals — is an external collaborator
// and is out of scope for this module; only the interface it must
// satisfy lives here, the way pkg/messagepipeline in the teacher module
// declares MessageTransformer without implementing any specific
// transform.
package mapper

import (
	"context"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
)

// ExternalMessage is the protocol-agnostic representation of wire bytes
// with headers that a Source connector hands to a mapper, and that a
// mapper hands back for a Target publisher to turn into a protocol
// request (spec.md §4.5 step 1-2).
type ExternalMessage struct {
	Headers connection.Headers
	// TextPayload is set when the message is textual; Bytes is set
	// otherwise. IsTextMessage reports which.
	TextPayload string
	Bytes       []byte
	isText      bool
}

// NewTextMessage builds an ExternalMessage carrying text.
func NewTextMessage(headers connection.Headers, text string) ExternalMessage {
	return ExternalMessage{Headers: headers, TextPayload: text, isText: true}
}

// NewBytesMessage builds an ExternalMessage carrying raw bytes.
func NewBytesMessage(headers connection.Headers, payload []byte) ExternalMessage {
	return ExternalMessage{Headers: headers, Bytes: payload}
}

// IsTextMessage reports whether this message was constructed as text,
// per the choice HttpPushPublisher makes in spec.md §4.5 step 2.
func (m ExternalMessage) IsTextMessage() bool {
	return m.isText
}

// ContentType extracts the Content-Type header if present, without
// mutating Headers.
func (m ExternalMessage) ContentType() (string, bool) {
	ct, ok := m.Headers["Content-Type"]
	return ct, ok
}

// Signal is an opaque internal signal (command, command-response,
// event, or acknowledgement). Its shape is owned by the signal/command
// data model, out of scope here (spec.md §1); the core only needs to
// move it and read a handful of typed facets through SignalInfo.
type Signal interface {
	// SignalInfo returns the facets the core needs without depending on
	// the concrete signal type.
	SignalInfo() SignalInfo
}

// SignalInfo is the minimal view of a Signal the core inspects: whether
// it is a message-command (so a matching *MessageResponse must be
// synthesized by the publisher, per spec.md §4.5 step 4) and its target
// entity id for that response.
type SignalInfo struct {
	IsMessageCommand bool
	EntityID         string
	// MessageDirective distinguishes SendThingMessage / SendFeatureMessage
	// / SendClaimMessage for response construction; empty when
	// IsMessageCommand is false.
	MessageDirective string
}

// Mapper is the pure transform contract: external bytes <-> internal
// signals. Map handles inbound external->signals; MapOutbound handles
// outbound signal->external.
type Mapper interface {
	Map(ctx context.Context, external ExternalMessage) ([]Signal, error)
	MapOutbound(ctx context.Context, signal Signal) (ExternalMessage, error)
}

// Factory constructs a Mapper for one connection. It may return a
// typed configuration error (see pkg/connerrors.MapperConfigurationError)
// during initialization; the client forwards that to the command origin
// and treats it as a transient failure (spec.md §4.6).
type Factory func(ctx context.Context, connectionID string, mappingContext *connection.MappingContext) (Mapper, error)
