package presence

import (
	"reflect"
	"sync"
	"testing"
)

func TestRegisterReportsFirstConnection(t *testing.T) {
	r := NewRegistry()

	if !r.Register("u1") {
		t.Fatalf("first connection should report user came online")
	}
	if r.Register("u1") {
		t.Fatalf("second connection should not report user came online")
	}
	if !r.IsOnline("u1") {
		t.Fatalf("u1 should be online")
	}
}

func TestMultiTabStaysOnlineUntilLastDisconnect(t *testing.T) {
	r := NewRegistry()
	r.Register("u1")
	r.Register("u1")

	if r.Unregister("u1") {
		t.Fatalf("closing one of two connections should not mark user offline")
	}
	if !r.IsOnline("u1") {
		t.Fatalf("u1 should still be online with one connection open")
	}
	if !r.Unregister("u1") {
		t.Fatalf("closing the last connection should mark user offline")
	}
	if r.IsOnline("u1") {
		t.Fatalf("u1 should be offline")
	}
}

func TestUnregisterUnknownUser(t *testing.T) {
	r := NewRegistry()
	if r.Unregister("ghost") {
		t.Fatalf("unregistering an unknown user should be a no-op")
	}
}

func TestSnapshotInsertionOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("u1")
	r.Register("u2")
	r.Register("u3")

	if got, want := r.Snapshot(), []string{"u1", "u2", "u3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}

	r.Unregister("u2")
	if got, want := r.Snapshot(), []string{"u1", "u3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot after unregister = %v, want %v", got, want)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Register("u1")

	snap := r.Snapshot()
	snap[0] = "mutated"

	if got := r.Snapshot()[0]; got != "u1" {
		t.Fatalf("snapshot mutation leaked into registry: %q", got)
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("u1")
			r.IsOnline("u1")
			r.Snapshot()
			r.Unregister("u1")
		}()
	}
	wg.Wait()

	if r.IsOnline("u1") {
		t.Fatalf("u1 should be offline after balanced register/unregister")
	}
}
