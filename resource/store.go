package resource

import (
	"sync"
)

// store is the slot allocator behind Table. Freed slots are reused.
type store struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value       any
	kind        Kind
	borrowCount uint32
	released    bool
	valid       bool
}

func newStore() *store {
	return &store{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

func (s *store) create(kind Kind, value any) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, false
	}

	e := entry{kind: kind, value: value, valid: true}

	if n := len(s.freeList); n > 0 {
		h := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		s.entries[h-1] = e
		return h, true
	}

	s.entries = append(s.entries, e)
	return Handle(len(s.entries)), true
}

// slot returns the live entry for h. Caller holds mu.
func (s *store) slot(h Handle) *entry {
	if h == 0 || int(h) > len(s.entries) {
		return nil
	}
	e := &s.entries[h-1]
	if !e.valid {
		return nil
	}
	return e
}

func (s *store) get(h Handle) (any, Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.slot(h)
	if e == nil || e.released {
		return nil, 0, false
	}
	return e.value, e.kind, true
}

// free clears the slot. Caller holds mu.
func (s *store) free(h Handle, e *entry) any {
	v := e.value
	*e = entry{}
	s.freeList = append(s.freeList, h)
	return v
}

// release drops h now, or marks it when borrows are outstanding.
// dropped reports whether the slot was freed by this call.
func (s *store) release(h Handle) (value any, kind Kind, found, dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.slot(h)
	if e == nil || e.released {
		return nil, 0, false, false
	}
	kind = e.kind
	if e.borrowCount > 0 {
		e.released = true
		return e.value, kind, true, false
	}
	return s.free(h, e), kind, true, true
}

func (s *store) borrow(h Handle) (any, Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.slot(h)
	if e == nil || e.released {
		return nil, 0, false
	}
	e.borrowCount++
	return e.value, e.kind, true
}

// giveBack returns one borrow. dropped reports a deferred release that
// completed with this return.
func (s *store) giveBack(h Handle) (value any, kind Kind, dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.slot(h)
	if e == nil || e.borrowCount == 0 {
		return nil, 0, false
	}
	e.borrowCount--
	kind = e.kind
	if e.borrowCount == 0 && e.released {
		return s.free(h, e), kind, true
	}
	return e.value, kind, false
}

func (s *store) borrows(h Handle) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e := s.slot(h); e != nil {
		return e.borrowCount
	}
	return 0
}

func (s *store) live() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hs []Handle
	for i, e := range s.entries {
		if e.valid && !e.released {
			hs = append(hs, Handle(i+1))
		}
	}
	return hs
}

// close invalidates every slot and returns the values that were still held.
func (s *store) close() []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var held []any
	for i := range s.entries {
		if s.entries[i].valid {
			held = append(held, s.entries[i].value)
		}
	}
	s.entries = nil
	s.freeList = nil
	return held
}
