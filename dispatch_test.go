package firewatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind inboundKind
		doc  string
		wind Wind
	}{
		{name: "pong", raw: `{"type":"pong"}`, kind: inboundPong},
		{name: "pong with extra fields", raw: `{"type":"pong","ts":1700000000000}`, kind: inboundPong},
		{name: "pong wins over envelope", raw: `{"type":"pong","message_type":"areas","payload":{}}`, kind: inboundPong},
		{
			name: "areas",
			raw:  `{"message_type":"areas","payload":{"type":"FeatureCollection","features":[]}}`,
			kind: inboundAreas,
			doc:  `{"type":"FeatureCollection","features":[]}`,
		},
		{name: "areas without payload", raw: `{"message_type":"areas"}`, kind: inboundMalformed},
		{name: "areas with null payload", raw: `{"message_type":"areas","payload":null}`, kind: inboundMalformed},
		{name: "wind", raw: `{"message_type":"wind","payload":{"speed":7.5,"direction":270}}`, kind: inboundWind, wind: Wind{Speed: 7.5, Direction: 270}},
		{name: "wind missing direction", raw: `{"message_type":"wind","payload":{"speed":12}}`, kind: inboundWind, wind: Wind{Speed: 12}},
		{name: "wind missing speed", raw: `{"message_type":"wind","payload":{"direction":45}}`, kind: inboundWind, wind: Wind{Direction: 45}},
		{name: "wind null payload", raw: `{"message_type":"wind","payload":null}`, kind: inboundWind},
		{name: "wind with string speed", raw: `{"message_type":"wind","payload":{"speed":"fast"}}`, kind: inboundMalformed},
		{name: "unknown object", raw: `{"foo":"bar"}`, kind: inboundDocument, doc: `{"foo":"bar"}`},
		{name: "unknown message type", raw: `{"message_type":"fires","payload":[]}`, kind: inboundDocument, doc: `{"message_type":"fires","payload":[]}`},
		{name: "array", raw: `[1,2,3]`, kind: inboundDocument, doc: `[1,2,3]`},
		{name: "scalar", raw: `42`, kind: inboundDocument, doc: `42`},
		{name: "non-string type", raw: `{"type":5}`, kind: inboundDocument, doc: `{"type":5}`},
		{name: "pong with numeric message_type", raw: `{"type":"pong","message_type":7}`, kind: inboundPong},
		{name: "pong with array message_type", raw: `{"type":"pong","message_type":["x"]}`, kind: inboundPong},
		{
			name: "areas with numeric type",
			raw:  `{"type":5,"message_type":"areas","payload":{"features":[]}}`,
			kind: inboundAreas,
			doc:  `{"features":[]}`,
		},
		{name: "wind with object type", raw: `{"type":{},"message_type":"wind","payload":{"speed":2}}`, kind: inboundWind, wind: Wind{Speed: 2}},
		{name: "malformed", raw: `{not json`, kind: inboundMalformed},
		{name: "empty", raw: ``, kind: inboundMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeInbound([]byte(tt.raw))
			require.Equal(t, tt.kind, got.kind, "kind %s", got.kind)
			if tt.doc != "" {
				assert.JSONEq(t, tt.doc, string(got.doc))
			} else {
				assert.Nil(t, got.doc)
			}
			assert.Equal(t, tt.wind, got.wind)
		})
	}
}

func TestDecodeInboundCopiesInput(t *testing.T) {
	raw := []byte(`{"foo":"bar"}`)
	got := decodeInbound(raw)
	raw[2] = 'x'
	assert.JSONEq(t, `{"foo":"bar"}`, string(got.doc))
}

func TestDocumentStore(t *testing.T) {
	s := newDocumentStore()
	assert.Equal(t, Snapshot{}, s.current())

	first := s.replaceAreas([]byte(`{"a":1}`), UpdateBootstrap)
	assert.Equal(t, uint64(1), first.Revision)
	assert.Equal(t, UpdateBootstrap, first.Kind)

	second := s.replaceWind(Wind{Speed: 4, Direction: 180})
	assert.Equal(t, uint64(2), second.Revision)
	assert.JSONEq(t, `{"a":1}`, string(second.Areas))

	third := s.replaceAreas([]byte(`{"a":2}`), UpdateAreas)
	assert.Equal(t, Wind{Speed: 4, Direction: 180}, third.Wind)
	assert.Equal(t, third, s.current())

	// Earlier snapshots are values and do not change.
	assert.JSONEq(t, `{"a":1}`, string(first.Areas))
	assert.Equal(t, Wind{}, first.Wind)
}
