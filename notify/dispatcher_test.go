package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/c360studio/semstreams/message"
)

type testEvent struct {
	ID string `json:"id"`
}

func (e *testEvent) Schema() message.Type {
	return message.Type{Domain: "test", Category: "event", Version: "v1"}
}

func (e *testEvent) Subject() string {
	return "test.event." + e.ID
}

func (e *testEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

func (e *testEvent) MarshalJSON() ([]byte, error) {
	type Alias testEvent
	return json.Marshal((*Alias)(e))
}

func (e *testEvent) UnmarshalJSON(data []byte) error {
	type Alias testEvent
	return json.Unmarshal(data, (*Alias)(e))
}

func TestDispatcherWithoutClientIsNoop(t *testing.T) {
	d := NewDispatcher(nil, "test", nil)

	// Must not panic or block with no NATS client.
	d.Notify(context.Background(), &testEvent{ID: "e1"})
}

func TestRecorderCapturesInOrder(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec.Notify(ctx, &testEvent{ID: fmt.Sprintf("e%d", i)})
	}

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(events))
	}
	for i, ev := range events {
		te, ok := ev.(*testEvent)
		if !ok {
			t.Fatalf("event %d has type %T, want *testEvent", i, ev)
		}
		if want := fmt.Sprintf("e%d", i); te.ID != want {
			t.Errorf("event %d ID = %s, want %s", i, te.ID, want)
		}
	}
}

func TestRecorderSnapshotIsIndependent(t *testing.T) {
	rec := &Recorder{}
	rec.Notify(context.Background(), &testEvent{ID: "e1"})

	snap := rec.Events()
	rec.Notify(context.Background(), &testEvent{ID: "e2"})

	if len(snap) != 1 {
		t.Errorf("snapshot length = %d after later notify, want 1", len(snap))
	}
}

func TestRecorderConcurrentNotify(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rec.Notify(ctx, &testEvent{ID: fmt.Sprintf("e%d", n)})
		}(i)
	}
	wg.Wait()

	if got := len(rec.Events()); got != 50 {
		t.Errorf("recorded %d events, want 50", got)
	}
}
