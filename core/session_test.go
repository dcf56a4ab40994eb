package core

import "testing"

func TestSession_ApplyStateDeltaAndClone(t *testing.T) {
	s := NewSession("s1", "research")

	s.ApplyStateDelta(map[string]any{"a": true, "sections": map[string]any{"x": "1"}})
	if v, ok := s.GetState("a"); !ok || v.(bool) != true {
		t.Fatalf("State not applied: %+v", s.State)
	}

	clone := s.Clone()
	if clone == s {
		t.Error("Clone should be a different pointer")
	}

	clone.State["sections"].(map[string]any)["y"] = "2"
	orig, _ := s.GetState("sections")
	if _, exists := orig.(map[string]any)["y"]; exists {
		t.Error("Original should not see nested mutation of the clone")
	}
}

func TestSession_AddEventCopiesOnRead(t *testing.T) {
	s := NewSession("s2", "weather")
	s.AddEvent(NewMessageEvent("s2", "chatbot", "hello"))
	s.AddEvent(NewUserMessageEvent("s2", "hi"))
	all := s.GetEvents()
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}
	all[0].Author = "changed"
	if s.GetEvents()[0].Author != "chatbot" {
		t.Error("events slice should be copied on read")
	}
}
