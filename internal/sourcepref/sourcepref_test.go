package sourcepref

import "testing"

func TestGetPriorityOrdering(t *testing.T) {
	sp := New([]string{"server", "plugin/*"})
	if got := sp.GetPriority("server"); got != 0 {
		t.Fatalf("expected priority 0 for server, got %d", got)
	}
	if got := sp.GetPriority("plugin/id3v2"); got != 1 {
		t.Fatalf("expected priority 1 for plugin/id3v2, got %d", got)
	}
	if got := sp.GetPriority("unknown"); got != MaxPriority {
		t.Fatalf("expected MaxPriority for unmatched source, got %d", got)
	}
}

func TestGetPriorityNilSafe(t *testing.T) {
	var sp *SourcePref
	if got := sp.GetPriority("anything"); got != MaxPriority {
		t.Fatalf("expected MaxPriority for nil SourcePref, got %d", got)
	}
}
