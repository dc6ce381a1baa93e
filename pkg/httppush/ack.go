package httppush

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
)

// DiagnosticAckLabel is the fallback acknowledgement label used when a
// Target carries no AutoAckLabel, per spec.md §4.5 ("Acknowledgement
// label"). Diagnostic-only: not a user-requested ack.
const DiagnosticAckLabel = "ditto-http-diagnostic"

// Acknowledgement is the typed receipt HttpPushFlow builds from an HTTP
// response, per spec.md §3's Acknowledgement facet and §4.5 step 5. It
// implements mapper.Signal so a Pipeline can hand it straight to a
// PublishContext's result future without a further mapping pass.
type Acknowledgement struct {
	Label      string
	EntityID   string
	StatusCode int
	Headers    connection.Headers
	Payload    json.RawMessage
}

func (a Acknowledgement) SignalInfo() mapper.SignalInfo {
	return mapper.SignalInfo{}
}

// MessageCommandResponse is the SendThing/Feature/ClaimMessageResponse
// spec.md §4.5 step 4 requires when the original signal was a
// MessageCommand: same shape as Acknowledgement, plus the directive
// that selects which concrete response type a consumer should render.
type MessageCommandResponse struct {
	Directive  string
	EntityID   string
	StatusCode int
	Headers    connection.Headers
	Payload    json.RawMessage
}

func (r MessageCommandResponse) SignalInfo() mapper.SignalInfo {
	return mapper.SignalInfo{IsMessageCommand: true, EntityID: r.EntityID, MessageDirective: r.Directive}
}

// isKnownStatusCode reports whether code is a status code this core
// recognizes, per spec.md §4.5 step 2 ("map HTTP status code to the
// internal status-code enum; if unrecognized, discard the body and
// fail"). The internal enum is, in practice, the standard HTTP status
// range; anything http.StatusText doesn't recognize (e.g. 799) is
// treated as unknown.
func isKnownStatusCode(code int) bool {
	return http.StatusText(code) != ""
}

// decodeBody implements spec.md §4.5 step 4's content-type dispatch:
// JSON-family bodies parse as JSON (falling back to a JSON string on
// parse failure); binary content types Base64-encode into a JSON
// string; everything else becomes a JSON string of the body text (see
// decodeText for charset handling).
func decodeBody(contentType string, body []byte) json.RawMessage {
	mediaType, params, _ := mime.ParseMediaType(contentType)
	switch {
	case isJSONMediaType(mediaType):
		if json.Valid(body) {
			return json.RawMessage(body)
		}
		return jsonString(string(body))
	case isBinaryMediaType(mediaType):
		return jsonString(base64.StdEncoding.EncodeToString(body))
	default:
		return jsonString(decodeText(body, params["charset"]))
	}
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func isBinaryMediaType(mediaType string) bool {
	switch {
	case mediaType == "":
		return false
	case strings.HasPrefix(mediaType, "text/"):
		return false
	case isJSONMediaType(mediaType):
		return false
	case mediaType == "application/xml" || strings.HasSuffix(mediaType, "+xml"):
		return false
	case mediaType == "application/x-www-form-urlencoded":
		return false
	default:
		return strings.HasPrefix(mediaType, "application/") || strings.HasPrefix(mediaType, "image/") ||
			strings.HasPrefix(mediaType, "audio/") || strings.HasPrefix(mediaType, "video/")
	}
}

// decodeText returns body as a string, read as UTF-8. A declared
// charset other than UTF-8 is not transcoded: such a body is passed
// through byte for byte.
func decodeText(body []byte, charset string) string {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return string(body)
	default:
		return string(body)
	}
}

func jsonString(s string) json.RawMessage {
	encoded, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return json.RawMessage(encoded)
}
