package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sundial-hq/aperture/pkg/upstream"
)

func TestJoinOrCreateOwnership(t *testing.T) {
	m := New(nil, Options{})

	_, isOwner := m.JoinOrCreate("fp-1")
	if !isOwner {
		t.Error("Expected the first caller to own the handle")
	}

	_, isOwner = m.JoinOrCreate("fp-1")
	if isOwner {
		t.Error("Expected the second caller to join as waiter")
	}

	if m.Len() != 1 {
		t.Errorf("Expected 1 in-flight handle, got %d", m.Len())
	}
}

func TestCompleteBroadcastsToWaiters(t *testing.T) {
	m := New(nil, Options{})

	owner, isOwner := m.JoinOrCreate("fp-1")
	if !isOwner {
		t.Fatal("Expected ownership")
	}

	const waiters = 5
	var wg sync.WaitGroup
	results := make([]*upstream.GenerationResponse, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		handle, isOwner := m.JoinOrCreate("fp-1")
		if isOwner {
			t.Fatal("Expected waiter role")
		}
		wg.Add(1)
		go func(i int, h *Handle) {
			defer wg.Done()
			results[i], errs[i] = h.Wait(context.Background())
		}(i, handle)
	}

	want := &upstream.GenerationResponse{Content: "done"}
	m.Complete(owner, want, nil)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Errorf("Waiter %d got error %v", i, errs[i])
		}
		if results[i] != want {
			t.Errorf("Waiter %d got %v, expected the owner's response", i, results[i])
		}
	}

	if m.Len() != 0 {
		t.Errorf("Expected handle removed after completion, got %d", m.Len())
	}
}

func TestCompletePropagatesOwnerError(t *testing.T) {
	m := New(nil, Options{})

	owner, _ := m.JoinOrCreate("fp-1")
	handle, _ := m.JoinOrCreate("fp-1")

	ownerErr := errors.New("upstream failed")
	m.Complete(owner, nil, ownerErr)

	_, err := handle.Wait(context.Background())
	if !errors.Is(err, ownerErr) {
		t.Errorf("Expected the owner's error, got %v", err)
	}
}

func TestCompleteUnregisteredHandleIsNoop(t *testing.T) {
	m := New(nil, Options{})
	h := &Handle{fingerprint: "absent", done: make(chan struct{})}
	m.Complete(h, nil, nil)

	if m.Len() != 0 {
		t.Errorf("Expected no handles, got %d", m.Len())
	}
	select {
	case <-h.done:
		t.Error("Unregistered handle must not be closed")
	default:
	}
}

func TestNewRequestAfterCompletionStartsFresh(t *testing.T) {
	m := New(nil, Options{})

	owner, _ := m.JoinOrCreate("fp-1")
	m.Complete(owner, &upstream.GenerationResponse{}, nil)

	_, isOwner := m.JoinOrCreate("fp-1")
	if !isOwner {
		t.Error("Expected a fresh handle after completion")
	}
}

func TestLateCompleteLeavesSuccessorInFlight(t *testing.T) {
	m := New(nil, Options{MaxLifetime: time.Millisecond})

	first, isOwner := m.JoinOrCreate("fp-1")
	if !isOwner {
		t.Fatal("Expected ownership")
	}

	time.Sleep(5 * time.Millisecond)
	if cleared := m.SweepStale(); cleared != 1 {
		t.Fatalf("Expected 1 handle cleared, got %d", cleared)
	}

	// A new owner starts a successor execution under the same fingerprint.
	second, isOwner := m.JoinOrCreate("fp-1")
	if !isOwner {
		t.Fatal("Expected ownership of the successor handle")
	}
	waiter, _ := m.JoinOrCreate("fp-1")

	// The original owner finishes late. Its result must not leak into the
	// successor.
	m.Complete(first, &upstream.GenerationResponse{Content: "stale"}, nil)
	if m.Len() != 1 {
		t.Fatalf("Expected the successor still in flight, got %d handles", m.Len())
	}

	m.Complete(second, &upstream.GenerationResponse{Content: "fresh"}, nil)
	resp, err := waiter.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if resp.Content != "fresh" {
		t.Errorf("Expected the successor's response, got %q", resp.Content)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	m := New(nil, Options{})

	m.JoinOrCreate("fp-1")
	handle, _ := m.JoinOrCreate("fp-1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := handle.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline error, got %v", err)
	}
}

func TestSweepStaleForceClears(t *testing.T) {
	m := New(nil, Options{MaxLifetime: 10 * time.Millisecond})

	m.JoinOrCreate("fp-1")
	handle, _ := m.JoinOrCreate("fp-1")

	time.Sleep(20 * time.Millisecond)

	cleared := m.SweepStale()
	if cleared != 1 {
		t.Errorf("Expected 1 handle cleared, got %d", cleared)
	}

	_, err := handle.Wait(context.Background())
	if !errors.Is(err, ErrHandleExpired) {
		t.Errorf("Expected ErrHandleExpired, got %v", err)
	}

	if m.Len() != 0 {
		t.Errorf("Expected no handles after sweep, got %d", m.Len())
	}
}

func TestSweepStaleKeepsYoungHandles(t *testing.T) {
	m := New(nil, Options{MaxLifetime: time.Minute})

	m.JoinOrCreate("fp-1")
	if cleared := m.SweepStale(); cleared != 0 {
		t.Errorf("Expected no handles cleared, got %d", cleared)
	}
	if m.Len() != 1 {
		t.Errorf("Expected the young handle kept, got %d", m.Len())
	}
}

func TestSingleFlightUnderConcurrency(t *testing.T) {
	m := New(nil, Options{})

	const goroutines = 50
	var owners atomic.Int32
	var wg sync.WaitGroup

	// Every goroutine signals once it has joined; the owner completes only
	// after all joins landed, so late arrivals cannot become second owners.
	var joined sync.WaitGroup
	joined.Add(goroutines)

	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			handle, isOwner := m.JoinOrCreate("fp-1")
			joined.Done()
			if isOwner {
				owners.Add(1)
				joined.Wait()
				m.Complete(handle, &upstream.GenerationResponse{Content: "x"}, nil)
				return
			}
			resp, err := handle.Wait(context.Background())
			if err != nil {
				t.Errorf("Waiter got error %v", err)
			} else if resp.Content != "x" {
				t.Errorf("Waiter got unexpected content %q", resp.Content)
			}
		}()
	}
	close(start)
	wg.Wait()

	if owners.Load() != 1 {
		t.Errorf("Expected exactly 1 owner, got %d", owners.Load())
	}
}
