package messaging

import "testing"

func TestOfflineQueue_PreservesInsertionOrder(t *testing.T) {
	q := NewOfflineQueue()
	q.Enqueue("u1", Message{ID: "1", Content: "a"})
	q.Enqueue("u1", Message{ID: "2", Content: "b"})
	q.Enqueue("u2", Message{ID: "3", Content: "c"})

	got := q.Drain("u1")
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("expected FIFO order, got %s then %s", got[0].ID, got[1].ID)
	}
	if q.Len("u2") != 1 {
		t.Fatalf("other recipients must be untouched")
	}
}

func TestOfflineQueue_DrainIsConsuming(t *testing.T) {
	q := NewOfflineQueue()
	q.Enqueue("u1", Message{ID: "1"})

	if got := q.Drain("u1"); len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got := q.Drain("u1"); len(got) != 0 {
		t.Fatalf("second drain must be empty, got %d", len(got))
	}
}
