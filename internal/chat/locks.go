package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// conversationLocks serializes streaming calls per conversation within
// this process. Entries are reference counted and removed when the last
// waiter releases, so the map does not grow with conversation count.
//
// Cross-process appends are additionally serialized by the store's row
// lock; this lock exists so an entire call (history read through final
// write) owns the conversation, not just each individual write.
type conversationLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// acquire blocks until the conversation lock is held or ctx is done.
// The returned release function must be called exactly once.
func (l *conversationLocks) acquire(ctx context.Context, id uuid.UUID) (release func(), err error) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.decref(id, e)
			})
		}, nil
	case <-ctx.Done():
		l.decref(id, e)
		return nil, ctx.Err()
	}
}

func (l *conversationLocks) decref(id uuid.UUID, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
	l.mu.Unlock()
}
