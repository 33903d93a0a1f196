package firewatch

import (
	"bytes"
	"encoding/json"
)

type inboundKind int

const (
	inboundMalformed inboundKind = iota
	inboundPong
	inboundAreas
	inboundWind
	inboundDocument
)

func (k inboundKind) String() string {
	switch k {
	case inboundMalformed:
		return "malformed"
	case inboundPong:
		return "pong"
	case inboundAreas:
		return "areas"
	case inboundWind:
		return "wind"
	case inboundDocument:
		return "document"
	default:
		return "unknown"
	}
}

// inbound is one decoded server message.
type inbound struct {
	kind inboundKind
	doc  json.RawMessage
	wind Wind
}

var jsonNull = []byte("null")

// decodeInbound classifies a raw message. Checks run in priority order and
// exactly one kind is returned:
//
//  1. not JSON                          -> malformed
//  2. {"type":"pong"}                   -> pong
//  3. {"message_type":"areas",...}      -> areas
//  4. {"message_type":"wind",...}       -> wind
//  5. any other JSON value              -> document (taken verbatim)
//
// An areas envelope without a payload and a wind envelope whose payload is
// not an object of numbers are both malformed.
func decodeInbound(raw []byte) inbound {
	if !json.Valid(raw) {
		return inbound{kind: inboundMalformed}
	}

	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Valid JSON that is not an object.
		return inbound{kind: inboundDocument, doc: cloneRaw(raw)}
	}
	msgType := rawString(env.MessageType)

	switch {
	case rawString(env.Type) == "pong":
		return inbound{kind: inboundPong}
	case msgType == "areas":
		payload := bytes.TrimSpace(env.Payload)
		if len(payload) == 0 || bytes.Equal(payload, jsonNull) {
			return inbound{kind: inboundMalformed}
		}
		return inbound{kind: inboundAreas, doc: cloneRaw(payload)}
	case msgType == "wind":
		wind, ok := decodeWind(env.Payload)
		if !ok {
			return inbound{kind: inboundMalformed}
		}
		return inbound{kind: inboundWind, wind: wind}
	default:
		return inbound{kind: inboundDocument, doc: cloneRaw(raw)}
	}
}

// decodeWind coalesces missing speed or direction to 0.
func decodeWind(payload json.RawMessage) (Wind, bool) {
	var w Wind
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, jsonNull) {
		return w, true
	}
	var p windPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return w, false
	}
	if p.Speed != nil {
		w.Speed = *p.Speed
	}
	if p.Direction != nil {
		w.Direction = *p.Direction
	}
	return w, true
}

// rawString decodes a discriminator. Anything but a JSON string yields "".
func rawString(raw json.RawMessage) string {
	var v string
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	return v
}

func cloneRaw(b []byte) json.RawMessage {
	return append(json.RawMessage(nil), b...)
}
