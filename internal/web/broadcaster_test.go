package web

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "hello")

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Msg != "hello" {
			t.Errorf("msg = %q, want \"hello\"", evt.Msg)
		}
		if evt.Level != "info" {
			t.Errorf("level = %q, want \"info\"", evt.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Broadcast("info", "multi")

	for i, ch := range []<-chan string{ch1, ch2} {
		select {
		case msg := <-ch:
			var evt StatusEvent
			if err := json.Unmarshal([]byte(msg), &evt); err != nil {
				t.Fatalf("subscriber %d: unmarshal: %v", i, err)
			}
			if evt.Msg != "multi" {
				t.Errorf("subscriber %d: msg = %q, want \"multi\"", i, evt.Msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout", i)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()

	// Channel should be closed after unsubscribe
	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	// Fill the channel buffer (64 messages)
	for i := 0; i < 64; i++ {
		b.Broadcast("info", "fill")
	}

	// This should not panic or block; the message is silently dropped
	b.Broadcast("info", "overflow")

	// Drain and count messages
	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count != 64 {
		t.Errorf("expected 64 buffered messages, got %d", count)
	}
}

func TestBroadcaster_AfterUnsubscribeBroadcastDoesNotPanic(t *testing.T) {
	b := NewStatusBroadcaster()
	_, unsub := b.Subscribe()
	unsub()

	// Broadcasting after unsubscribe should not panic
	b.Broadcast("info", "after unsub")
}

func TestBroadcaster_ReplaysLogHistory(t *testing.T) {
	b := NewStatusBroadcaster()
	for i := 0; i < historySize+5; i++ {
		b.Broadcast("info", "line")
	}
	b.Broadcast("info", "last")
	b.BroadcastData("tick", "TRACKING", json.RawMessage(`{"tick":1}`))

	ch, unsub := b.Subscribe()
	defer unsub()

	var got []StatusEvent
	for len(ch) > 0 {
		var evt StatusEvent
		if err := json.Unmarshal([]byte(<-ch), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, evt)
	}
	if len(got) != historySize {
		t.Fatalf("replayed %d events, want %d", len(got), historySize)
	}
	if got[len(got)-1].Msg != "last" {
		t.Errorf("last replayed = %q, want \"last\"", got[len(got)-1].Msg)
	}
	for _, evt := range got {
		if evt.Level == "tick" {
			t.Error("tick events must not be replayed")
		}
	}
}

func TestBroadcastWriter_Write(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	n, err := w.Write([]byte("  trimmed message  \n"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != len("  trimmed message  \n") {
		t.Errorf("n = %d, want %d", n, len("  trimmed message  \n"))
	}

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Msg != "trimmed message" {
			t.Errorf("msg = %q, want \"trimmed message\"", evt.Msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestBroadcastWriter_LevelFromTag(t *testing.T) {
	tests := []struct {
		line  string
		level string
	}{
		{"[PanTrack] 12:00:00 [INFO] Tracking started", "info"},
		{"[PanTrack] 12:00:00 [ERROR] tick 4: move pan: boom", "error"},
		{"[PanTrack] 12:00:00 [LIVE] Tick 4: pan=90.00 tilt=54.00 lost=0", "live"},
		{"[PanTrack] 12:00:00 [VERBOSE] Step 1: init", "verbose"},
		{"[PanTrack] 12:00:00 [GPIO] WritePin pin=5 value=true", "trace"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			b := NewStatusBroadcaster()
			ch, unsub := b.Subscribe()
			defer unsub()

			BroadcastWriter(b).Write([]byte(tt.line + "\n"))

			var evt StatusEvent
			if err := json.Unmarshal([]byte(<-ch), &evt); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if evt.Level != tt.level {
				t.Errorf("level = %q, want %q", evt.Level, tt.level)
			}
		})
	}
}

func TestBroadcastWriter_EmptyWriteIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	w.Write([]byte("   \n"))

	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
		// expected: no message
	}
}

func TestBroadcaster_EventHasTimestamp(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "timestamped")

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Time == "" {
			t.Error("event should have a timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestBroadcaster_BroadcastData(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.BroadcastData("tick", "SETTLING", json.RawMessage(`{"tick":3}`))

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Level != "tick" || evt.Msg != "SETTLING" {
			t.Errorf("event = %q/%q, want tick/SETTLING", evt.Level, evt.Msg)
		}
		if string(evt.Data) != `{"tick":3}` {
			t.Errorf("data = %s", evt.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestBroadcaster_PlainEventHasNoData(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "plain")

	msg := <-ch
	if strings.Contains(msg, `"data"`) {
		t.Errorf("plain event should omit data: %s", msg)
	}
}
