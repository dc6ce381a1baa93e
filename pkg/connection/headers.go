package connection

import "github.com/google/uuid"

// CorrelationIDHeader and SourceHeader are the well-known dittoHeaders
// keys the core reads and writes.
const (
	CorrelationIDHeader = "correlation-id"
	SourceHeader        = "source"
)

// Headers is the free-form key/value header bag ("dittoHeaders") that
// travels with every signal. The core never needs the full DittoHeaders
// model owned by the signal data model (out of scope per spec.md §1);
// it only needs to read/write a handful of well-known keys.
type Headers map[string]string

// WithCorrelationID returns a copy of h with the correlation-id set. If
// h already carries one it is left untouched.
func (h Headers) WithCorrelationID() Headers {
	out := h.clone()
	if out[CorrelationIDHeader] == "" {
		out[CorrelationIDHeader] = uuid.NewString()
	}
	return out
}

// WithSource returns a copy of h tagged with the instance suffix that
// produced a reply, per spec.md §6
// ("dittoHeaders{source=instanceSuffix}").
func (h Headers) WithSource(instanceSuffix string) Headers {
	out := h.clone()
	out[SourceHeader] = instanceSuffix
	return out
}

// CorrelationID returns the correlation-id header, or "" if absent.
func (h Headers) CorrelationID() string {
	return h[CorrelationIDHeader]
}

func (h Headers) clone() Headers {
	out := make(Headers, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}
