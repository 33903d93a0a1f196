package firewatch

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ============================================================================
// Errors
// ============================================================================

var (
	ErrNotOpen           = errors.New("firewatch: session not open")
	ErrSendBufferFull    = errors.New("firewatch: send buffer full")
	ErrAlreadyStarted    = errors.New("firewatch: stream client already started")
	ErrInvalidDocument   = errors.New("firewatch: invalid JSON document")
	ErrBaseURLRequired   = errors.New("firewatch: base URL required")
	ErrUnsupportedScheme = errors.New("firewatch: base URL scheme must be http or https")
)

// APIError is returned when the API answers with a non-2xx status.
type APIError struct {
	StatusCode int    `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firewatch: HTTP %d: %s", e.StatusCode, e.Message)
}

// ============================================================================
// Synced document
// ============================================================================

// Wind is the latest wind reading pushed by the server.
type Wind struct {
	Speed     float64 `json:"speed"`
	Direction float64 `json:"direction"` // degrees
}

// UpdateKind names the mutation that produced a Snapshot revision.
type UpdateKind string

const (
	UpdateNone      UpdateKind = ""
	UpdateBootstrap UpdateKind = "bootstrap"
	UpdateAreas     UpdateKind = "areas"
	UpdateWind      UpdateKind = "wind"
	UpdateDocument  UpdateKind = "document"
)

// Snapshot is the locally held view of server state. Each accepted update
// produces a new Snapshot; the Areas bytes are shared between snapshots and
// must not be modified by consumers.
type Snapshot struct {
	Areas    json.RawMessage `json:"areas,omitempty"`
	Wind     Wind            `json:"wind"`
	Revision uint64          `json:"revision"`
	Kind     UpdateKind      `json:"kind,omitempty"`
}

// ============================================================================
// Wire format
// ============================================================================

// pingMessage is the only client-to-server message.
type pingMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

// inboundEnvelope covers every recognised server-to-client shape. The
// discriminators stay raw so that a field of the wrong type only fails its
// own match.
type inboundEnvelope struct {
	Type        json.RawMessage `json:"type"`
	MessageType json.RawMessage `json:"message_type"`
	Payload     json.RawMessage `json:"payload"`
}

// windPayload keeps the wire fields optional so missing values coalesce to 0.
type windPayload struct {
	Speed     *float64 `json:"speed"`
	Direction *float64 `json:"direction"`
}
