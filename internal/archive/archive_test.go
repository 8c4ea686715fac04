package archive_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/maylavoice/mayla/internal/archive"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if MAYLA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MAYLA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MAYLA_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *archive.Store {
	t.Helper()
	store, err := archive.Open(context.Background(), testDSN(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestNilStoreIsNoOp(t *testing.T) {
	store, err := archive.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open with empty dsn: %v", err)
	}
	if store != nil {
		t.Fatalf("store = %v, want nil when archiving is disabled", store)
	}

	ctx := context.Background()
	if err := store.Write(ctx, archive.Segment{Text: "hello"}); err != nil {
		t.Errorf("Write on nil store: %v", err)
	}
	if segs, err := store.Recent(ctx, "s1", 10); err != nil || segs != nil {
		t.Errorf("Recent on nil store = %v, %v", segs, err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping on nil store: %v", err)
	}
	store.Close()
}

func TestWriteAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, text := range []string{"hey there", "hello, how can I help", "what's the weather"} {
		err := store.Write(ctx, archive.Segment{
			SessionID: "sess-recent",
			Role:      "user",
			Text:      text,
			SpokenAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	segs, err := store.Recent(ctx, "sess-recent", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("len = %d, want 2", len(segs))
	}
	// Oldest-first within the newest window.
	if segs[0].Text != "hello, how can I help" || segs[1].Text != "what's the weather" {
		t.Errorf("unexpected order: %q, %q", segs[0].Text, segs[1].Text)
	}
}

func TestFullTextSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Write(ctx, archive.Segment{
		SessionID: "sess-search",
		Role:      "assistant",
		Text:      "your meeting with the design team is at three",
		SpokenAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	segs, err := store.Search(ctx, "design meeting", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, seg := range segs {
		if seg.SessionID == "sess-search" {
			found = true
		}
	}
	if !found {
		t.Error("search did not return the archived segment")
	}
}
