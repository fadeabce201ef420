package homeassistant

import "testing"

func TestParseStateChange(t *testing.T) {
	frame := `{"id":1,"type":"event","event":{"event_type":"state_changed","data":{"entity_id":"light.kitchen_main","new_state":{"entity_id":"light.kitchen_main","state":"on","attributes":{"brightness":180}}}}}`

	got, ok := parseStateChange([]byte(frame))
	if !ok {
		t.Fatal("valid frame rejected")
	}
	if got.EntityID != "light.kitchen_main" || got.State != "on" {
		t.Errorf("state = %+v", got)
	}
	if got.Attributes["brightness"] != float64(180) {
		t.Errorf("attributes = %+v", got.Attributes)
	}
}

func TestParseStateChangeRejectsNonEvents(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"auth frame", `{"type":"auth_ok"}`},
		{"result frame", `{"id":1,"type":"result"}`},
		{"removed entity", `{"type":"event","event":{"event_type":"state_changed","data":{"entity_id":"light.gone","new_state":null}}}`},
		{"garbage", `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseStateChange([]byte(tt.frame)); ok {
				t.Error("frame accepted")
			}
		})
	}
}
