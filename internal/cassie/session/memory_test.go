package session

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func TestMemoryStoreGetUnknownReturnsFresh(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	st, err := s.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st == nil {
		t.Fatal("Get returned nil state")
	}
	if st.OrderID != "" || st.CustomerID != 0 || st.PendingOffer != nil {
		t.Errorf("fresh state not zero: %+v", st)
	}
}

func TestMemoryStorePutGetRoundTrip(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	in := &State{
		OrderID:       "ORDL123",
		CustomerID:    7,
		LastIssueCode: "DEFECTIVE_ITEM",
		PendingOffer:  &PendingOffer{IssueType: "payment issues", FirstMsg: "hello"},
	}
	if err := s.Put(ctx, "sess-1", in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.OrderID != "ORDL123" || out.CustomerID != 7 || out.LastIssueCode != "DEFECTIVE_ITEM" {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if out.PendingOffer == nil || out.PendingOffer.IssueType != "payment issues" {
		t.Errorf("pending offer lost in round trip: %+v", out.PendingOffer)
	}
}

func TestMemoryStoreCopiesState(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	in := &State{OrderID: "ORDL123", PendingOffer: &PendingOffer{IssueType: "other"}}
	if err := s.Put(ctx, "sess-1", in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Mutating the caller's copy after Put must not leak into the store.
	in.OrderID = "ORDL999"
	in.PendingOffer.IssueType = "mutated"

	out, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.OrderID != "ORDL123" {
		t.Errorf("stored OrderID = %q, caller mutation leaked in", out.OrderID)
	}
	if out.PendingOffer.IssueType != "other" {
		t.Errorf("stored offer = %q, caller mutation leaked in", out.PendingOffer.IssueType)
	}

	// Mutating the returned copy must not affect a later Get either.
	out.OrderID = "ORDL000"
	again, _ := s.Get(ctx, "sess-1")
	if again.OrderID != "ORDL123" {
		t.Errorf("second Get OrderID = %q, returned copy was shared", again.OrderID)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	if err := s.Put(ctx, "sess-1", &State{OrderID: "ORDL123"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	st, _ := s.Get(ctx, "sess-1")
	if st.OrderID != "" {
		t.Errorf("state survived Delete: %+v", st)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(10 * time.Minute)
	now := time.Now()

	s.putAt("sess-1", &State{OrderID: "ORDL123"}, now)

	if st := s.getAt("sess-1", now.Add(9*time.Minute)); st.OrderID != "ORDL123" {
		t.Errorf("state expired before TTL: %+v", st)
	}
	if st := s.getAt("sess-1", now.Add(11*time.Minute)); st.OrderID != "" {
		t.Errorf("state survived past TTL: %+v", st)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore(10 * time.Minute)
	now := time.Now()

	s.putAt("old", &State{}, now.Add(-20*time.Minute))
	s.putAt("fresh", &State{}, now)

	if dropped := s.Sweep(now); dropped != 1 {
		t.Errorf("Sweep dropped %d entries, want 1", dropped)
	}
	if s.Len() != 1 {
		t.Errorf("Len after Sweep = %d, want 1", s.Len())
	}
}

func TestMemoryStoreJanitorEvictsExpired(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := s.Put(ctx, "sess-"+strconv.Itoa(i), &State{OrderID: "ORDL123"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// Expired entries must actually leave the map, not merely read as fresh.
	deadline := time.Now().Add(5 * time.Second)
	for s.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor left %d entries past their TTL", s.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	st, err := s.Get(ctx, "sess-0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st.OrderID != "" {
		t.Errorf("expired state still readable: %+v", st)
	}
}

func TestMemoryStoreCloseIsIdempotent(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
