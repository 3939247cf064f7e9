package openairealtime

import (
	"encoding/json"
	"testing"
)

func TestParseServerEvent(t *testing.T) {
	ev, err := ParseServerEvent([]byte(`{"type":"response.output_text.delta","item_id":"item_1","delta":"안"}`))
	if err != nil {
		t.Fatalf("ParseServerEvent: %v", err)
	}
	if ev.Type != EventTypeResponseOutputTextDelta || ev.Delta != "안" || ev.ItemID != "item_1" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Raw) == 0 {
		t.Error("Raw not kept")
	}
}

func TestParseServerEventErrorShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"object", `{"type":"error","error":{"type":"server_error","message":"boom"}}`, "boom"},
		{"string", `{"type":"session.error","error":"rate limited"}`, "rate limited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseServerEvent([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseServerEvent: %v", err)
			}
			if ev.Error == nil || ev.Error.Message != tt.want {
				t.Errorf("Error = %+v, want message %q", ev.Error, tt.want)
			}
		})
	}
}

func TestParseServerEventRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`not json`, `{"delta":"x"}`} {
		if _, err := ParseServerEvent([]byte(raw)); err == nil {
			t.Errorf("ParseServerEvent(%q) succeeded", raw)
		}
	}
}

func TestNewUserTextItem(t *testing.T) {
	id := NewItemID()
	if len(id) > 32 {
		t.Fatalf("item id %q longer than 32", id)
	}
	data, err := json.Marshal(NewUserTextItem(id, "오늘 날씨 어때"))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Type string           `json:"type"`
		Item ConversationItem `json:"item"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != EventTypeConversationItemCreate {
		t.Errorf("type = %q", got.Type)
	}
	if got.Item.ID != id || got.Item.Role != "user" || len(got.Item.Content) != 1 {
		t.Fatalf("item = %+v", got.Item)
	}
	if c := got.Item.Content[0]; c.Type != "input_text" || c.Text != "오늘 날씨 어때" {
		t.Errorf("content = %+v", c)
	}
}
