package presence

import "testing"

func TestRegistryOnlineTransitions(t *testing.T) {
	reg := NewRegistry()

	if reg.IsOnline("u1") {
		t.Error("IsOnline() = true before any connection")
	}

	if cameOnline := reg.AddConnection("u1", "c1"); !cameOnline {
		t.Error("AddConnection() first conn; cameOnline = false, want true")
	}
	if cameOnline := reg.AddConnection("u1", "c2"); cameOnline {
		t.Error("AddConnection() second conn; cameOnline = true, want false")
	}
	// idempotent re-add
	if cameOnline := reg.AddConnection("u1", "c2"); cameOnline {
		t.Error("AddConnection() re-add; cameOnline = true, want false")
	}
	if got := reg.ConnectionCount("u1"); got != 2 {
		t.Errorf("ConnectionCount() = %d, want 2", got)
	}

	// user A opens two device connections, then closes one: still online
	if wentOffline := reg.RemoveConnection("u1", "c1"); wentOffline {
		t.Error("RemoveConnection() with one conn left; wentOffline = true, want false")
	}
	if !reg.IsOnline("u1") {
		t.Error("IsOnline() = false with one connection left")
	}

	// closes the second: offline, observable exactly once
	if wentOffline := reg.RemoveConnection("u1", "c2"); !wentOffline {
		t.Error("RemoveConnection() last conn; wentOffline = false, want true")
	}
	if wentOffline := reg.RemoveConnection("u1", "c2"); wentOffline {
		t.Error("RemoveConnection() repeated; wentOffline = true, want exactly-once")
	}
	if reg.IsOnline("u1") {
		t.Error("IsOnline() = true after all connections removed")
	}
}

func TestRegistryRemoveForeignConnection(t *testing.T) {
	reg := NewRegistry()
	reg.AddConnection("u1", "c1")

	tests := []struct {
		name   string
		userID string
		connID string
	}{
		{name: "unknown user", userID: "nope", connID: "c1"},
		{name: "conn of another user", userID: "u2", connID: "c1"},
		{name: "unknown conn", userID: "u1", connID: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if wentOffline := reg.RemoveConnection(tt.userID, tt.connID); wentOffline {
				t.Error("RemoveConnection() no-op case; wentOffline = true, want false")
			}
		})
	}

	if !reg.IsOnline("u1") {
		t.Error("IsOnline() = false; foreign removals must not affect u1")
	}
}

func TestRegistryListOnline(t *testing.T) {
	reg := NewRegistry()
	reg.AddConnection("u1", "c1")
	reg.AddConnection("u2", "c2")
	reg.AddConnection("u2", "c3")
	reg.RemoveConnection("u1", "c1")

	online := reg.ListOnline()
	if len(online) != 1 || online[0] != "u2" {
		t.Errorf("ListOnline() = %v, want [u2]", online)
	}
}
