package core

import (
	"container/heap"
	"sync"
	"time"
)

// Session is a Context scoped to a client-held session id, plus the
// timestamp at which it becomes eligible for eviction.
type Session struct {
	Context *Context
	Expiry  time.Time
}

type heapEntry struct {
	expiry time.Time
	id     string
}

type expiryHeap []heapEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiry.Before(h[j].expiry) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(heapEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SessionMap stores sessions keyed by session id with expiry-ordered
// eviction: a primary id->Session map plus an auxiliary min-heap of
// (expiry, id) pairs. A single exclusive lock protects both structures,
// since they must move together.
type SessionMap struct {
	mu   sync.Mutex
	data map[string]Session
	heap expiryHeap

	defaultTimeout  time.Duration
	cleanerInterval time.Duration
	cleanerEnabled  bool

	stopCleaner chan struct{}
	running     func() bool
}

// NewSessionMap returns an empty SessionMap. defaultTimeout is floored to
// 1 second.
func NewSessionMap(defaultTimeout time.Duration) *SessionMap {
	if defaultTimeout < time.Second {
		defaultTimeout = time.Second
	}
	return &SessionMap{
		data:           make(map[string]Session),
		defaultTimeout: defaultTimeout,
	}
}

// GetSession returns the Context for id, creating one if absent or expired,
// and extends the expiry to at least now+defaultTimeout. A short-clean pass
// runs after every access.
func (sm *SessionMap) GetSession(id string) *Context {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	if s, ok := sm.data[id]; ok && s.Expiry.After(now) {
		newExpiry := s.Expiry
		if candidate := now.Add(sm.defaultTimeout); candidate.After(newExpiry) {
			newExpiry = candidate
		}
		if !newExpiry.Equal(s.Expiry) {
			s.Expiry = newExpiry
			sm.data[id] = s
			heap.Push(&sm.heap, heapEntry{expiry: newExpiry, id: id})
		}
		sm.shortCleanLocked(now)
		return s.Context
	}

	ctx := NewContext()
	expiry := now.Add(sm.defaultTimeout)
	sm.data[id] = Session{Context: ctx, Expiry: expiry}
	heap.Push(&sm.heap, heapEntry{expiry: expiry, id: id})
	sm.shortCleanLocked(now)
	return ctx
}

// SetSessionTimeout extends (or creates) the session for id so that its
// expiry is at least now+max(1s, d).
func (sm *SessionMap) SetSessionTimeout(id string, d time.Duration) {
	if d < time.Second {
		d = time.Second
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	if s, ok := sm.data[id]; ok {
		newExpiry := s.Expiry
		if candidate := now.Add(d); candidate.After(newExpiry) {
			newExpiry = candidate
		}
		if !newExpiry.Equal(s.Expiry) {
			s.Expiry = newExpiry
			sm.data[id] = s
			heap.Push(&sm.heap, heapEntry{expiry: newExpiry, id: id})
		}
		return
	}

	expiry := now.Add(d)
	sm.data[id] = Session{Context: NewContext(), Expiry: expiry}
	heap.Push(&sm.heap, heapEntry{expiry: expiry, id: id})
}

// Len returns the number of live entries in the map.
func (sm *SessionMap) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.data)
}

// RemoveSession erases the primary entry for id. The corresponding heap
// entry, if any, is discarded lazily the next time it is popped.
func (sm *SessionMap) RemoveSession(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.data, id)
}

// shortCleanLocked runs only if the heap has grown much larger than the
// map, popping up to 8 expired entries and shrinking the heap storage if it
// has become mostly stale. Callers must hold sm.mu.
func (sm *SessionMap) shortCleanLocked(now time.Time) {
	if len(sm.heap) <= 2*len(sm.data) {
		return
	}
	for i := 0; i < 8 && len(sm.heap) > 0; i++ {
		top := sm.heap[0]
		if top.expiry.After(now) {
			break
		}
		heap.Pop(&sm.heap)
		if s, ok := sm.data[top.id]; ok && s.Expiry.Equal(top.expiry) {
			delete(sm.data, top.id)
		}
	}
	sm.maybeShrink()
}

// thoroughCleanLocked pops every entry with expiry <= now. Callers must
// hold sm.mu.
func (sm *SessionMap) thoroughCleanLocked(now time.Time) {
	for len(sm.heap) > 0 && !sm.heap[0].expiry.After(now) {
		top := heap.Pop(&sm.heap).(heapEntry)
		if s, ok := sm.data[top.id]; ok && s.Expiry.Equal(top.expiry) {
			delete(sm.data, top.id)
		}
	}
	sm.maybeShrink()
}

// maybeShrink reallocates the heap's backing storage once it has grown
// far past what the live entries need. Callers must hold sm.mu.
func (sm *SessionMap) maybeShrink() {
	if cap(sm.heap) > 8*len(sm.heap) && len(sm.heap) > 256 {
		fresh := make(expiryHeap, len(sm.heap))
		copy(fresh, sm.heap)
		sm.heap = fresh
	}
}

// EnableCleaner arms a background timer that runs every
// max(1s, interval), alternating between short and thorough cleans
// depending on how stale the heap has become. running is consulted on
// every tick; while it reports false the tick's clean is skipped, and the
// ticker keeps running until DisableCleaner is called.
func (sm *SessionMap) EnableCleaner(interval time.Duration, running func() bool) {
	if interval < time.Second {
		interval = time.Second
	}
	sm.mu.Lock()
	if sm.cleanerEnabled {
		sm.mu.Unlock()
		return
	}
	sm.cleanerEnabled = true
	sm.cleanerInterval = interval
	sm.running = running
	sm.stopCleaner = make(chan struct{})
	stop := sm.stopCleaner
	sm.mu.Unlock()

	go sm.cleanerLoop(stop)
}

// DisableCleaner stops the background timer started by EnableCleaner.
func (sm *SessionMap) DisableCleaner() {
	sm.mu.Lock()
	if !sm.cleanerEnabled {
		sm.mu.Unlock()
		return
	}
	sm.cleanerEnabled = false
	close(sm.stopCleaner)
	sm.mu.Unlock()
}

func (sm *SessionMap) cleanerLoop(stop chan struct{}) {
	ticker := time.NewTicker(sm.cleanerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sm.mu.Lock()
			if sm.running != nil && !sm.running() {
				sm.mu.Unlock()
				continue
			}
			now := time.Now()
			if len(sm.heap) < 8*len(sm.data) {
				sm.shortCleanLocked(now)
			} else {
				sm.thoroughCleanLocked(now)
			}
			sm.mu.Unlock()
		}
	}
}
