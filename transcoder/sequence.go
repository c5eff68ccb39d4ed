package transcoder

import "maps"

// SequenceMap remembers, for one marshalling session, the host value built
// for every composite value already visited. A container is registered
// before its elements are converted, so a self reference resolves to the
// partially built value instead of recursing again.
//
// A SequenceMap belongs to exactly one session and is not safe for
// concurrent use. Nested sessions, such as a host callback running inside
// a guest call, must use their own.
type SequenceMap[K comparable, V any] struct {
	seen map[K]V
}

// NewSequenceMap returns an empty map.
func NewSequenceMap[K comparable, V any]() *SequenceMap[K, V] {
	return &SequenceMap[K, V]{seen: make(map[K]V)}
}

// Test returns the value registered for key.
func (m *SequenceMap[K, V]) Test(key K) (V, bool) {
	v, ok := m.seen[key]
	return v, ok
}

// Register records partial as the value for key.
func (m *SequenceMap[K, V]) Register(key K, partial V) {
	m.seen[key] = partial
}

// Snapshot returns a copy of the current registrations.
func (m *SequenceMap[K, V]) Snapshot() map[K]V {
	return maps.Clone(m.seen)
}

// Len returns the number of registrations.
func (m *SequenceMap[K, V]) Len() int {
	return len(m.seen)
}

// Clear drops all registrations.
func (m *SequenceMap[K, V]) Clear() {
	clear(m.seen)
}
