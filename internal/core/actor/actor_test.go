package actor

import (
	"context"
	"testing"
	"time"
)

func TestMailbox_FIFOOrdering(t *testing.T) {
	m := New(0)
	defer m.Close()

	const n = 100
	for i := 0; i < n; i++ {
		i := i
		m.Cast(func(s *int) {
			if *s != i {
				t.Errorf("out of order: state=%d, expected %d", *s, i)
			}
			*s++
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := Call(ctx, m, func(s *int) int { return *s })
	if !ok || got != n {
		t.Fatalf("Call() = %d, %v; want %d, true", got, ok, n)
	}
}

func TestCall_AfterClose(t *testing.T) {
	m := New(0)
	m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := Call(ctx, m, func(s *int) int { return *s })
	if ok {
		t.Fatal("Call() on closed mailbox should fail")
	}
}

func TestClose_Idempotent(t *testing.T) {
	m := New(0)
	m.Close()
	m.Close() // must not panic or block
	if !m.Closed() {
		t.Fatal("Closed() should report true after Close")
	}
}

func TestClose_DrainsQueuedJobs(t *testing.T) {
	m := New(0)
	done := make(chan struct{})
	m.Cast(func(s *int) {
		*s = 42
		close(done)
	})
	m.Close()
	select {
	case <-done:
	default:
		t.Fatal("queued job did not run before Close returned")
	}
}
