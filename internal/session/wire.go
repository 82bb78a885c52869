package session

import "encoding/json"

// inboundEnvelope is the wire shape of every client -> server event. Only
// the fields relevant to evt.Type are populated by the client; the rest are
// zero values. encoding/json transparently base64-decodes the Data field
// since it is typed []byte.
type inboundEnvelope struct {
	Type string `json:"type"`

	// client
	UUID string `json:"uuid,omitempty"`
	Pin  string `json:"pin,omitempty"`
	Name string `json:"name,omitempty"`

	// paint
	LayerNumber *int    `json:"layerNumber,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	Data        []byte  `json:"data,omitempty"`

	// stroke
	Points []rawPoint `json:"points,omitempty"`

	// chat
	Message string `json:"message,omitempty"`
	Time    int64  `json:"time,omitempty"`
}

type rawPoint [3]float64

// wireEncode merges kind into payload's JSON object form, matching the
// flat {"type": kind, ...fields} shape of most server -> client events.
// Some payloads (the "clients" roster broadcast) are JSON arrays rather
// than objects and can't be spliced into a flat shape that way, so those
// are carried under a "list" field instead.
func wireEncode(kind string, payload any) ([]byte, error) {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	frame := map[string]any{"type": kind}

	switch {
	case len(raw) == 0:
		// nil payload: {"type": kind} only.
	case raw[0] == '[':
		frame["list"] = json.RawMessage(raw)
	default:
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			frame[k] = v
		}
	}

	return json.Marshal(frame)
}
