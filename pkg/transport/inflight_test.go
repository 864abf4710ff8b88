package transport

import (
	"fmt"
	"sync"
	"testing"
)

func TestInFlightRegistry(t *testing.T) {
	r := NewInFlightRegistry()

	var cancelled []string
	for _, id := range []string{"req_a", "req_b"} {
		r.Register(id, func() { cancelled = append(cancelled, id) })
	}
	if r.Len() != 2 {
		t.Fatalf("got %d entries, want 2", r.Len())
	}

	if !r.Cancel("req_a") {
		t.Error("Cancel(req_a) = false, want true")
	}
	if r.Cancel("req_a") {
		t.Error("second Cancel(req_a) = true, want false")
	}
	if r.Cancel("req_unknown") {
		t.Error("Cancel(req_unknown) = true, want false")
	}

	// A finished task is dropped without being cancelled.
	r.Remove("req_b")
	r.Remove("req_unknown")
	if r.Cancel("req_b") {
		t.Error("Cancel after Remove = true, want false")
	}

	if len(cancelled) != 1 || cancelled[0] != "req_a" {
		t.Errorf("cancelled = %v, want [req_a]", cancelled)
	}
	if r.Len() != 0 {
		t.Errorf("got %d entries, want 0", r.Len())
	}
}

func TestInFlightRegistryConcurrent(t *testing.T) {
	r := NewInFlightRegistry()
	const n = 64

	var (
		mu    sync.Mutex
		count int
		wg    sync.WaitGroup
	)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("req_%d", i)
	}

	for _, id := range ids {
		wg.Go(func() {
			r.Register(id, func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		})
	}
	wg.Wait()

	for i, id := range ids {
		wg.Go(func() {
			if i%2 == 0 {
				r.Cancel(id)
			} else {
				r.Remove(id)
			}
		})
	}
	wg.Wait()

	if count != n/2 {
		t.Errorf("got %d cancellations, want %d", count, n/2)
	}
	if r.Len() != 0 {
		t.Errorf("got %d entries left, want 0", r.Len())
	}
}
