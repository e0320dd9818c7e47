package watch

import (
	"testing"
	"time"

	"github.com/ValentinKolb/sqc/rpc/client"
)

func TestForwardDeliversEvents(t *testing.T) {
	events := make(chan client.Event, 1)
	stop := make(chan struct{})
	handler := forward(events, stop)

	handler(client.Event{Kind: client.EventNotify, Name: "textmessage"})
	select {
	case ev := <-events:
		if ev.Name != "textmessage" {
			t.Errorf("unexpected event %q", ev.Name)
		}
	default:
		t.Fatalf("event was not forwarded")
	}
}

func TestForwardDoesNotBlockAfterStop(t *testing.T) {
	events := make(chan client.Event, 1)
	stop := make(chan struct{})
	handler := forward(events, stop)

	// fill the buffer, the printing loop is gone
	handler(client.Event{Kind: client.EventNotify, Name: "first"})
	close(stop)

	done := make(chan struct{})
	go func() {
		handler(client.Event{Kind: client.EventNotify, Name: "second"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("handler blocked on a full buffer after stop")
	}
}
