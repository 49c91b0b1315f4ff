package events

import "testing"

type countingEmitter struct{ seen []string }

func (c *countingEmitter) Emit(evt Event) { c.seen = append(c.seen, evt.EventType()) }

func TestBufferForwardPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(&Record{Type: "redbank.deposit"})
	buf.Emit(&Record{Type: "redbank.borrow"})
	buf.Emit(nil)

	if got := len(buf.Events()); got != 2 {
		t.Fatalf("expected 2 buffered events, got %d", got)
	}
	dst := &countingEmitter{}
	buf.Forward(dst)
	if len(dst.seen) != 2 || dst.seen[0] != "redbank.deposit" || dst.seen[1] != "redbank.borrow" {
		t.Fatalf("unexpected forwarded events: %v", dst.seen)
	}
	if len(buf.Drain()) != 0 {
		t.Fatalf("buffer should be empty after forward")
	}
}

func TestRecordKeysSorted(t *testing.T) {
	rec := &Record{Type: "x", Attributes: map[string]string{"b": "2", "a": "1"}}
	keys := rec.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}
