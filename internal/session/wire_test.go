package session

import (
	"encoding/json"
	"testing"

	"github.com/kanreisa/reichat-server/internal/room"
)

func TestWireEncodeMergesKindIntoPayload(t *testing.T) {
	raw, err := wireEncode("chat", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("wireEncode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "chat" || got["message"] != "hi" {
		t.Fatalf("wireEncode output = %v, want type=chat message=hi", got)
	}
}

func TestWireEncodeNilPayload(t *testing.T) {
	raw, err := wireEncode("server", nil)
	if err != nil {
		t.Fatalf("wireEncode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "server" || len(got) != 1 {
		t.Fatalf("wireEncode(nil) = %v, want only {type: server}", got)
	}
}

// TestWireEncodeArrayPayload guards against a regression where an array
// payload (the "clients" roster broadcast) was spliced via
// json.Unmarshal into a map[string]any and errored on every call, silently
// dropping every roster broadcast.
func TestWireEncodeArrayPayload(t *testing.T) {
	list := []room.DistClient{
		{UUID: "u1", Name: "alice", ServerID: "srv-1"},
		{UUID: "u2", Name: "bob", ServerID: "srv-1"},
	}

	raw, err := wireEncode("clients", list)
	if err != nil {
		t.Fatalf("wireEncode: %v", err)
	}

	var got struct {
		Type string            `json:"type"`
		List []room.DistClient `json:"list"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "clients" {
		t.Fatalf("type = %q, want clients", got.Type)
	}
	if len(got.List) != 2 || got.List[0].UUID != "u1" || got.List[1].Name != "bob" {
		t.Fatalf("list = %v, want the original roster slice round-tripped", got.List)
	}
}

func TestWireEncodeEmptyArrayPayload(t *testing.T) {
	raw, err := wireEncode("clients", []room.DistClient{})
	if err != nil {
		t.Fatalf("wireEncode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "clients" {
		t.Fatalf("type = %v, want clients", got["type"])
	}
	list, ok := got["list"].([]any)
	if !ok || len(list) != 0 {
		t.Fatalf("list = %v, want an empty array", got["list"])
	}
}
