package signaling

import "encoding/json"

// SignalPayload is the envelope clients place inside the opaque payload of
// relayed signaling messages. The server never reads it; receivers need From
// to know which peer connection the descriptor belongs to.
type SignalPayload struct {
	From      string          `json:"from"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// EncodeSignal marshals a payload envelope.
func EncodeSignal(p *SignalPayload) (json.RawMessage, error) {
	return json.Marshal(p)
}

// DecodeSignal unmarshals a payload envelope.
func DecodeSignal(raw json.RawMessage) (*SignalPayload, error) {
	var p SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
