package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestConversationLocks_MutualExclusion(t *testing.T) {
	t.Parallel()

	locks := newConversationLocks()
	id := uuid.New()
	ctx := context.Background()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.acquire(ctx, id)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestConversationLocks_DifferentKeysIndependent(t *testing.T) {
	t.Parallel()

	locks := newConversationLocks()
	ctx := context.Background()

	releaseA, err := locks.acquire(ctx, uuid.New())
	if err != nil {
		t.Fatalf("acquire A: %v", err)
	}
	defer releaseA()

	ctxB, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	releaseB, err := locks.acquire(ctxB, uuid.New())
	if err != nil {
		t.Fatalf("acquire B blocked by unrelated lock: %v", err)
	}
	releaseB()
}

func TestConversationLocks_AcquireRespectsContext(t *testing.T) {
	t.Parallel()

	locks := newConversationLocks()
	id := uuid.New()

	release, err := locks.acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.acquire(ctx, id); err == nil {
		t.Fatal("second acquire succeeded while lock held")
	}

	release()

	// After release, acquisition succeeds again.
	release2, err := locks.acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestConversationLocks_EntriesCleanedUp(t *testing.T) {
	t.Parallel()

	locks := newConversationLocks()
	for i := 0; i < 100; i++ {
		release, err := locks.acquire(context.Background(), uuid.New())
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		release()
	}

	locks.mu.Lock()
	n := len(locks.entries)
	locks.mu.Unlock()
	if n != 0 {
		t.Errorf("%d lock entries remain after release", n)
	}
}

func TestConversationLocks_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	locks := newConversationLocks()
	id := uuid.New()

	release, err := locks.acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release() // must not panic or corrupt state

	release2, err := locks.acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire after double release: %v", err)
	}
	release2()
}
