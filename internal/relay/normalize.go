package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/transport"
)

// Two payload shapes exist on the wire: the flat envelope published under the
// new.message event name, and a legacy frame nesting the envelope under an
// event_type marker. Decoders are tried in order; a frame matching none is
// dropped with a debug log so a malformed producer can never break the
// subscriber chain.
var envelopeDecoders = []func(transport.Message) (domain.Envelope, bool){
	decodeFlat,
	decodeNested,
}

func decodeEnvelope(msg transport.Message) (domain.Envelope, bool) {
	for _, decode := range envelopeDecoders {
		if env, ok := decode(msg); ok {
			return env, true
		}
	}
	slog.Debug("Dropping message with unknown payload shape", "event", msg.Name)
	return domain.Envelope{}, false
}

// wireEnvelope tolerates the field variants seen in historical payloads:
// "text" and "message" both carry the body.
type wireEnvelope struct {
	SessionID string            `json:"session_id"`
	Sender    domain.SenderRole `json:"sender_type"`
	Text      string            `json:"text"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

func decodeFlat(msg transport.Message) (domain.Envelope, bool) {
	if msg.Name != EventNewMessage {
		return domain.Envelope{}, false
	}
	return parseEnvelope(msg.Data)
}

// decodeNested handles frames where the event name travels inside the payload
// instead of on the frame.
func decodeNested(msg transport.Message) (domain.Envelope, bool) {
	var nested struct {
		EventType string          `json:"event_type"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &nested); err != nil {
		return domain.Envelope{}, false
	}
	if nested.EventType != EventNewMessage || len(nested.Data) == 0 {
		return domain.Envelope{}, false
	}
	return parseEnvelope(nested.Data)
}

func parseEnvelope(data []byte) (domain.Envelope, bool) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return domain.Envelope{}, false
	}
	if wire.SessionID == "" || !wire.Sender.Valid() {
		return domain.Envelope{}, false
	}
	text := wire.Text
	if text == "" {
		text = wire.Message
	}
	return domain.Envelope{
		SessionID: wire.SessionID,
		Sender:    wire.Sender,
		Text:      text,
		Timestamp: wire.Timestamp,
	}, true
}
