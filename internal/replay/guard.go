// ABOUTME: Single-use guard for bearer tokens identified by their jti
// ABOUTME: In-memory, size-bounded store of spent IDs kept until each token expires

package replay

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFull is returned when every slot holds a still-live ID.
var ErrFull = errors.New("replay guard full")

// Guard records token IDs as spent.
type Guard interface {
	// Spend marks id as used until expiresAt. It returns true on first use
	// and false when id was already spent.
	Spend(ctx context.Context, id string, expiresAt time.Time) (bool, error)
}

// entry stores the expiry and list element for a spent ID.
type entry struct {
	expiresAt time.Time
	element   *list.Element
}

// MemoryGuard is a process-local Guard. Unlike a plain LRU it never evicts
// a live entry, since doing so would reopen that token for replay.
type MemoryGuard struct {
	mu      sync.Mutex
	spent   map[string]*entry
	order   *list.List // IDs in insertion order (oldest at front)
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewMemoryGuard creates a guard holding at most maxSize live IDs.
// A background goroutine periodically drops expired entries; call Close to stop it.
func NewMemoryGuard(maxSize int, now func() time.Time) *MemoryGuard {
	if now == nil {
		now = time.Now
	}
	g := &MemoryGuard{
		spent:   make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
	go g.cleanup()
	return g
}

// Spend atomically checks and marks id.
func (g *MemoryGuard) Spend(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, ok := g.spent[id]; ok {
		if now.Before(e.expiresAt) {
			return false, nil
		}
		g.removeLocked(id, e)
	}
	if !now.Before(expiresAt) {
		// Already expired tokens fail verification anyway
		return true, nil
	}

	if g.maxSize > 0 && len(g.spent) >= g.maxSize {
		g.pruneLocked(now)
		if len(g.spent) >= g.maxSize {
			return false, ErrFull
		}
	}

	elem := g.order.PushBack(id)
	g.spent[id] = &entry{expiresAt: expiresAt, element: elem}
	return true, nil
}

// Len returns the number of IDs currently held.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.spent)
}

func (g *MemoryGuard) removeLocked(id string, e *entry) {
	g.order.Remove(e.element)
	delete(g.spent, id)
}

// pruneLocked drops expired entries. Must be called with mu held.
func (g *MemoryGuard) pruneLocked(now time.Time) {
	for elem := g.order.Front(); elem != nil; {
		next := elem.Next()
		id, _ := elem.Value.(string)
		if e := g.spent[id]; e != nil && !now.Before(e.expiresAt) {
			g.removeLocked(id, e)
		}
		elem = next
	}
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (g *MemoryGuard) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.mu.Lock()
			g.pruneLocked(g.now())
			g.mu.Unlock()
		case <-g.done:
			return
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (g *MemoryGuard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
