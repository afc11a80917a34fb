package presence

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Basic operations
// ---------------------------------------------------------------------------

func TestAddLookupRemove(t *testing.T) {
	d := NewDirectory(FirstWriterWins)

	if !d.Add("alice", "c1") {
		t.Fatal("expected first Add to succeed")
	}
	conn, ok := d.Lookup("alice")
	if !ok || conn != "c1" {
		t.Fatalf("Lookup(alice) = %q, %v; want c1, true", conn, ok)
	}

	user, ok := d.Remove("c1")
	if !ok || user != "alice" {
		t.Fatalf("Remove(c1) = %q, %v; want alice, true", user, ok)
	}
	if _, ok := d.Lookup("alice"); ok {
		t.Error("alice should be absent after removal")
	}
}

func TestRemove_UnknownIsNoop(t *testing.T) {
	d := NewDirectory(FirstWriterWins)
	d.Add("alice", "c1")

	if _, ok := d.Remove("nope"); ok {
		t.Error("Remove of unknown connection should report false")
	}
	if d.Count() != 1 {
		t.Errorf("Count = %d, want 1", d.Count())
	}
}

func TestAdd_Idempotent(t *testing.T) {
	d := NewDirectory(FirstWriterWins)

	d.Add("alice", "c1")
	if !d.Add("alice", "c1") {
		t.Error("re-adding the same pair should report true")
	}
	if d.Count() != 1 {
		t.Errorf("Count = %d, want 1", d.Count())
	}
	if n := len(d.Snapshot()); n != 1 {
		t.Errorf("Snapshot has %d entries, want 1", n)
	}
}

func TestAdd_RejectsEmpty(t *testing.T) {
	d := NewDirectory(FirstWriterWins)
	if d.Add("", "c1") || d.Add("alice", "") {
		t.Error("empty identifiers should be rejected")
	}
	if d.Count() != 0 {
		t.Errorf("Count = %d, want 0", d.Count())
	}
}

func TestAdd_ConnectionBoundToOtherUser(t *testing.T) {
	d := NewDirectory(LastWriterWins)
	d.Add("alice", "c1")

	if d.Add("bob", "c1") {
		t.Fatal("a connection already bound to alice must not be bound to bob")
	}
	if _, ok := d.Lookup("bob"); ok {
		t.Error("bob should have no route")
	}
	if user, _ := d.UserOf("c1"); user != "alice" {
		t.Errorf("UserOf(c1) = %q, want alice", user)
	}
}

// ---------------------------------------------------------------------------
// Rebind policies
// ---------------------------------------------------------------------------

func TestFirstWriterSticks(t *testing.T) {
	d := NewDirectory(FirstWriterWins)
	d.Add("alice", "c1")

	if d.Add("alice", "c2") {
		t.Error("second connection should not take over the route")
	}
	conn, _ := d.Lookup("alice")
	if conn != "c1" {
		t.Errorf("route = %q, want c1", conn)
	}

	// The unregistered connection closing must not disturb the route.
	if _, ok := d.Remove("c2"); ok {
		t.Error("c2 was never registered")
	}
	if conn, _ := d.Lookup("alice"); conn != "c1" {
		t.Errorf("route after c2 close = %q, want c1", conn)
	}
}

func TestLastWriterWins(t *testing.T) {
	d := NewDirectory(LastWriterWins)
	d.Add("alice", "c1")

	if !d.Add("alice", "c2") {
		t.Fatal("second connection should take over the route")
	}
	if conn, _ := d.Lookup("alice"); conn != "c2" {
		t.Errorf("route = %q, want c2", conn)
	}

	// Closing the superseded connection leaves the new route intact.
	if _, ok := d.Remove("c1"); ok {
		t.Error("c1 should no longer own an entry")
	}
	if conn, _ := d.Lookup("alice"); conn != "c2" {
		t.Errorf("route after c1 close = %q, want c2", conn)
	}
}

func TestRemove_OnlyTouchesOwnEntry(t *testing.T) {
	d := NewDirectory(FirstWriterWins)
	d.Add("alice", "c1")
	d.Add("bob", "c2")
	d.Add("carol", "c3")

	d.Remove("c2")

	if d.Count() != 2 {
		t.Fatalf("Count = %d, want 2", d.Count())
	}
	if conn, _ := d.Lookup("alice"); conn != "c1" {
		t.Errorf("alice route = %q, want c1", conn)
	}
	if conn, _ := d.Lookup("carol"); conn != "c3" {
		t.Errorf("carol route = %q, want c3", conn)
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy("last_writer") != LastWriterWins {
		t.Error("last_writer should parse to LastWriterWins")
	}
	if ParsePolicy("") != FirstWriterWins || ParsePolicy("x") != FirstWriterWins {
		t.Error("unknown values should default to FirstWriterWins")
	}
}

// ---------------------------------------------------------------------------
// Property: random bind/remove sequences keep the indexes consistent
// ---------------------------------------------------------------------------

func checkInvariants(t *testing.T, d *Directory) {
	t.Helper()
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.byUser) != len(d.byConn) {
		t.Fatalf("index sizes differ: byUser=%d byConn=%d", len(d.byUser), len(d.byConn))
	}
	for user, conn := range d.byUser {
		if d.byConn[conn] != user {
			t.Fatalf("byConn[%s] = %q, want %q", conn, d.byConn[conn], user)
		}
	}
	seen := make(map[string]bool)
	for _, conn := range d.byUser {
		if seen[conn] {
			t.Fatalf("connection %s routes for two users", conn)
		}
		seen[conn] = true
	}
}

func TestRandomSequences(t *testing.T) {
	for _, policy := range []Policy{FirstWriterWins, LastWriterWins} {
		t.Run(policy.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			d := NewDirectory(policy)

			for i := 0; i < 5000; i++ {
				user := fmt.Sprintf("u%d", rng.Intn(20))
				conn := fmt.Sprintf("c%d", rng.Intn(40))
				if rng.Intn(3) == 0 {
					d.Remove(conn)
				} else {
					d.Add(user, conn)
				}
				if i%100 == 0 {
					checkInvariants(t, d)
				}
			}
			checkInvariants(t, d)
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	d := NewDirectory(FirstWriterWins)
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				user := fmt.Sprintf("u%d", i%50)
				conn := fmt.Sprintf("w%d-c%d", w, i)
				d.Add(user, conn)
				d.Lookup(user)
				if i%2 == 0 {
					d.Remove(conn)
				}
			}
		}(w)
	}
	wg.Wait()
	checkInvariants(t, d)
}
