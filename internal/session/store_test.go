package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/complai/complai/internal/log"
)

func newTestStore(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return NewStore(cfg)
}

func mustCreate(t *testing.T, s *Store, owner string) Session {
	t.Helper()
	sess, created, err := s.GetOrCreate(uuid.Nil, owner)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created {
		t.Fatal("GetOrCreate(uuid.Nil) should create a new session")
	}
	return sess
}

func TestGetOrCreate_NewSession(t *testing.T) {
	s := newTestStore(Config{})

	sess := mustCreate(t, s, "alice")
	if sess.ID == uuid.Nil {
		t.Error("new session must have a non-nil ID")
	}
	if sess.Owner != "alice" {
		t.Errorf("Owner = %q, want alice", sess.Owner)
	}
	if sess.MessageCount != 0 {
		t.Errorf("MessageCount = %d, want 0", sess.MessageCount)
	}
}

func TestGetOrCreate_ReusesLiveSession(t *testing.T) {
	s := newTestStore(Config{})

	first := mustCreate(t, s, "alice")
	second, created, err := s.GetOrCreate(first.ID, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate(existing): %v", err)
	}
	if created {
		t.Error("existing live session should not be recreated")
	}
	if second.ID != first.ID {
		t.Errorf("ID = %s, want %s", second.ID, first.ID)
	}
}

func TestGetOrCreate_UnknownIDYieldsFreshID(t *testing.T) {
	s := newTestStore(Config{})

	stale := uuid.New()
	sess, created, err := s.GetOrCreate(stale, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate(unknown): %v", err)
	}
	if !created {
		t.Error("unknown id must create a new session")
	}
	if sess.ID == stale {
		t.Error("a stale id must never be silently reused")
	}
}

func TestGetOrCreate_ForeignOwner(t *testing.T) {
	s := newTestStore(Config{})

	sess := mustCreate(t, s, "alice")
	_, _, err := s.GetOrCreate(sess.ID, "mallory")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("GetOrCreate(foreign owner) = %v, want ErrNotAuthorized", err)
	}
}

func TestGetOrCreate_EmptyOwner(t *testing.T) {
	s := newTestStore(Config{})
	if _, _, err := s.GetOrCreate(uuid.Nil, ""); !errors.Is(err, ErrEmptyOwner) {
		t.Errorf("GetOrCreate(empty owner) = %v, want ErrEmptyOwner", err)
	}
}

func TestAppend_SlidingWindow(t *testing.T) {
	const window = 3
	s := newTestStore(Config{WindowSize: window})
	sess := mustCreate(t, s, "alice")

	// Append 5 pairs; only the most recent 3 pairs (6 messages) survive.
	for i := range 5 {
		if err := s.Append(sess.ID, RoleHuman, fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("Append human: %v", err)
		}
		if err := s.Append(sess.ID, RoleAssistant, fmt.Sprintf("a%d", i)); err != nil {
			t.Fatalf("Append assistant: %v", err)
		}
	}

	history, total, err := s.History(sess.ID, "alice")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 10 {
		t.Errorf("total messages = %d, want 10 (monotonic, unaffected by trim)", total)
	}
	if len(history) != 2*window {
		t.Fatalf("history length = %d, want %d", len(history), 2*window)
	}

	// FIFO eviction: the retained entries are exactly the most recent ones.
	want := []string{"q2", "a2", "q3", "a3", "q4", "a4"}
	for i, msg := range history {
		if msg.Content != want[i] {
			t.Errorf("history[%d].Content = %q, want %q", i, msg.Content, want[i])
		}
	}
}

func TestAppend_NeverExceedsBound(t *testing.T) {
	const window = 2
	s := newTestStore(Config{WindowSize: window})
	sess := mustCreate(t, s, "alice")

	for i := range 20 {
		role := RoleHuman
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := s.Append(sess.ID, role, "m"); err != nil {
			t.Fatalf("Append: %v", err)
		}
		history, _, err := s.History(sess.ID, "alice")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) > 2*window {
			t.Fatalf("after %d appends history length = %d, exceeds bound %d",
				i+1, len(history), 2*window)
		}
	}
}

func TestAppend_UnknownSession(t *testing.T) {
	s := newTestStore(Config{})
	if err := s.Append(uuid.New(), RoleHuman, "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Append(unknown) = %v, want ErrSessionNotFound", err)
	}
}

func TestAppend_InvalidRole(t *testing.T) {
	s := newTestStore(Config{})
	sess := mustCreate(t, s, "alice")
	if err := s.Append(sess.ID, Role("system"), "hi"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Append(bad role) = %v, want ErrInvalidRole", err)
	}
}

func TestHistory_RoundTrip(t *testing.T) {
	s := newTestStore(Config{})
	sess := mustCreate(t, s, "alice")

	if err := s.Append(sess.ID, RoleHuman, "What is GDPR?"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(sess.ID, RoleAssistant, "A data protection regulation."); err != nil {
		t.Fatalf("Append: %v", err)
	}

	history, total, err := s.History(sess.ID, "alice")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 2 || len(history) != 2 {
		t.Fatalf("got %d retained / %d total, want 2/2", len(history), total)
	}
	if history[0].Role != RoleHuman || history[1].Role != RoleAssistant {
		t.Errorf("roles = %s,%s; want human,assistant", history[0].Role, history[1].Role)
	}
	if history[0].Content != "What is GDPR?" {
		t.Errorf("history[0].Content = %q", history[0].Content)
	}
}

func TestHistory_Ownership(t *testing.T) {
	s := newTestStore(Config{})
	sess := mustCreate(t, s, "alice")

	if _, _, err := s.History(sess.ID, "mallory"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("History(foreign owner) = %v, want ErrNotAuthorized", err)
	}
}

func TestHistory_ReturnsCopy(t *testing.T) {
	s := newTestStore(Config{})
	sess := mustCreate(t, s, "alice")
	if err := s.Append(sess.ID, RoleHuman, "original"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	history, _, _ := s.History(sess.ID, "alice")
	history[0].Content = "mutated"

	again, _, _ := s.History(sess.ID, "alice")
	if again[0].Content != "original" {
		t.Error("History must return a defensive copy")
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := newTestStore(Config{})
	sess := mustCreate(t, s, "alice")

	if err := s.Delete(sess.ID, "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(sess.ID, "alice"); err != nil {
		t.Errorf("second Delete = %v, want nil (idempotent)", err)
	}
	if err := s.Delete(uuid.New(), "alice"); err != nil {
		t.Errorf("Delete(unknown) = %v, want nil", err)
	}
}

func TestDelete_ForeignOwner(t *testing.T) {
	s := newTestStore(Config{})
	sess := mustCreate(t, s, "alice")

	if err := s.Delete(sess.ID, "mallory"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Delete(foreign owner) = %v, want ErrNotAuthorized", err)
	}
	// Session must still be reachable for its owner.
	if _, _, err := s.History(sess.ID, "alice"); err != nil {
		t.Errorf("session should survive foreign delete attempts: %v", err)
	}
}

func TestExpiry_UnreachableBeforeSweep(t *testing.T) {
	s := newTestStore(Config{Timeout: time.Hour})
	sess := mustCreate(t, s, "alice")

	// Advance the clock past the timeout without sweeping.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, _, err := s.History(sess.ID, "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("History(expired) = %v, want ErrSessionNotFound", err)
	}
	if err := s.Append(sess.ID, RoleHuman, "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Append(expired) = %v, want ErrSessionNotFound", err)
	}

	// GetOrCreate with the expired id must mint a fresh one.
	fresh, created, err := s.GetOrCreate(sess.ID, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate(expired): %v", err)
	}
	if !created || fresh.ID == sess.ID {
		t.Errorf("expired id must yield new session (created=%v, id=%s)", created, fresh.ID)
	}
}

func TestSweepExpired(t *testing.T) {
	s := newTestStore(Config{Timeout: time.Hour})
	mustCreate(t, s, "alice")
	mustCreate(t, s, "bob")

	if n := s.SweepExpired(); n != 0 {
		t.Errorf("SweepExpired() = %d, want 0 while fresh", n)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n := s.SweepExpired(); n != 2 {
		t.Errorf("SweepExpired() = %d, want 2", n)
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() after sweep = %d, want 0", got)
	}
}

func TestCapacity_EvictsOldestActive(t *testing.T) {
	const capacity = 3
	s := newTestStore(Config{MaxSessions: capacity})

	base := time.Now()
	tick := 0
	s.now = func() time.Time { return base.Add(time.Duration(tick) * time.Minute) }

	ids := make([]uuid.UUID, capacity)
	for i := range capacity {
		tick = i
		ids[i] = mustCreate(t, s, "alice").ID
	}

	// Touch the first session so the second becomes the oldest.
	tick = capacity
	if _, _, err := s.History(ids[0], "alice"); err != nil {
		t.Fatalf("History: %v", err)
	}

	tick = capacity + 1
	mustCreate(t, s, "alice")

	if got := s.Len(); got != capacity {
		t.Errorf("Len() = %d, want %d (exactly one eviction)", got, capacity)
	}
	if _, _, err := s.History(ids[1], "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("oldest-active session should have been evicted, History = %v", err)
	}
	if _, _, err := s.History(ids[0], "alice"); err != nil {
		t.Errorf("recently touched session must survive eviction: %v", err)
	}
}

func TestList_OwnerScopedNewestFirst(t *testing.T) {
	s := newTestStore(Config{})

	base := time.Now()
	tick := 0
	s.now = func() time.Time { return base.Add(time.Duration(tick) * time.Minute) }

	tick = 0
	a1 := mustCreate(t, s, "alice")
	tick = 1
	a2 := mustCreate(t, s, "alice")
	tick = 2
	mustCreate(t, s, "bob")

	got := s.List("alice")
	if len(got) != 2 {
		t.Fatalf("List(alice) returned %d sessions, want 2", len(got))
	}
	if got[0].ID != a2.ID || got[1].ID != a1.ID {
		t.Errorf("List order = %s,%s; want newest first %s,%s",
			got[0].ID, got[1].ID, a2.ID, a1.ID)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(Config{WindowSize: 5, MaxSessions: 100})
	sess := mustCreate(t, s, "alice")
	_ = s.Append(sess.ID, RoleHuman, "hi")
	_ = s.Append(sess.ID, RoleAssistant, "hello")

	st := s.Stats()
	if st.ActiveSessions != 1 || st.MaxSessions != 100 || st.WindowSize != 5 {
		t.Errorf("Stats = %+v", st)
	}
	if st.TotalMessages != 2 {
		t.Errorf("TotalMessages = %d, want 2", st.TotalMessages)
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	const (
		window     = 4
		goroutines = 8
		perG       = 50
	)
	s := newTestStore(Config{WindowSize: window})
	sess := mustCreate(t, s, "alice")

	var wg sync.WaitGroup
	for g := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perG {
				_ = s.Append(sess.ID, RoleHuman, fmt.Sprintf("g%d-%d", g, i))
			}
		}()
	}
	wg.Wait()

	history, total, err := s.History(sess.ID, "alice")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != goroutines*perG {
		t.Errorf("total = %d, want %d", total, goroutines*perG)
	}
	if len(history) != 2*window {
		t.Errorf("history length = %d, want %d", len(history), 2*window)
	}
}
