package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewMessageType(t *testing.T) {
	msg := NewMessage("birthday", "created", "abc-123", nil)
	if msg.Type != "birthday_created" {
		t.Errorf("type = %q, want %q", msg.Type, "birthday_created")
	}
	if msg.ID != "abc-123" {
		t.Errorf("id = %q, want %q", msg.ID, "abc-123")
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c := NewClient(hub, nil)
	hub.Register(c)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Fatalf("client count = %d, want 0", hub.ClientCount())
	}

	// Double unregister must not panic (channel already closed).
	hub.Unregister(c)
}

func TestBroadcastDeliversToRegisteredClients(t *testing.T) {
	hub := NewHub(slog.Default())

	c := NewClient(hub, nil)
	hub.Register(c)
	defer hub.Unregister(c)

	hub.Broadcast(NewMessage("birthday", "deleted", "id-1", nil))

	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if msg.Type != "birthday_deleted" || msg.ID != "id-1" {
			t.Errorf("got %+v, want birthday_deleted id-1", msg)
		}
	default:
		t.Fatal("no message delivered to client")
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(slog.Default())

	c := NewClient(hub, nil)
	hub.Register(c)
	defer hub.Unregister(c)

	// Overflow the buffer; extra messages are dropped, not blocking.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Broadcast(NewMessage("birthday", "created", "x", nil))
	}

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}
