package log

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEncodeDecodeEvent(t *testing.T) {
	on := true
	original := Event{
		Timestamp:    time.Now().Truncate(time.Millisecond),
		ConnectionID: "c5a9e3c0-1111-2222-3333-444455556666",
		DeviceAddr:   "10.0.0.42:8443",
		Category:     CategoryOperation,
		Operation: &OperationEvent{
			Kind:       "write",
			Value:      &on,
			Outcome:    "ok",
			DurationMS: 12,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.ConnectionID != original.ConnectionID {
		t.Errorf("ConnectionID = %q, want %q", decoded.ConnectionID, original.ConnectionID)
	}
	if decoded.Category != CategoryOperation {
		t.Errorf("Category = %v, want CategoryOperation", decoded.Category)
	}
	if decoded.Operation == nil || decoded.Operation.Kind != "write" {
		t.Errorf("Operation payload not preserved: %+v", decoded.Operation)
	}
	if decoded.Operation.Value == nil || !*decoded.Operation.Value {
		t.Error("Operation value not preserved")
	}
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")

	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	l.Log(Event{
		Timestamp: time.Now(),
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			OldState: "DISCONNECTED",
			NewState: "CONNECTING",
			Reason:   "login",
		},
	})
	l.Log(Event{
		Timestamp:  time.Now(),
		Category:   CategoryCredential,
		Credential: &CredentialEvent{Action: "refreshed", Fingerprint: "ab12cd34"},
	})

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Logging after close is silently ignored.
	l.Log(Event{Category: CategoryError})
	if err := l.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].StateChange == nil || events[0].StateChange.NewState != "CONNECTING" {
		t.Errorf("first event not preserved: %+v", events[0])
	}
	if events[1].Credential == nil || events[1].Credential.Action != "refreshed" {
		t.Errorf("second event not preserved: %+v", events[1])
	}
}

func TestFileLogger_ConcurrentUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")

	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Log(Event{Timestamp: time.Now(), Category: CategoryOperation,
					Operation: &OperationEvent{Kind: "read", Outcome: "ok"}})
			}
		}()
	}
	wg.Wait()

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(events) != 200 {
		t.Errorf("got %d events, want 200", len(events))
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := NewSlogAdapter(logger)

	a.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Category:     CategoryError,
		Error:        &ErrorEvent{Context: "scheduler", Message: "boom"},
	})

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("conn-1")) {
		t.Errorf("output missing connection ID: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte("scheduler")) {
		t.Errorf("output missing error context: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte("WARN")) {
		t.Errorf("error events should log at warn level: %s", out)
	}
}

func TestMultiLogger(t *testing.T) {
	var mu sync.Mutex
	var got []Event
	capture := loggerFunc(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	m := NewMultiLogger(capture, NoopLogger{}, capture)
	m.Log(Event{Category: CategoryState})

	if len(got) != 2 {
		t.Errorf("got %d captured events, want 2", len(got))
	}
}

// loggerFunc adapts a function to the Logger interface for tests.
type loggerFunc func(Event)

func (f loggerFunc) Log(ev Event) { f(ev) }
