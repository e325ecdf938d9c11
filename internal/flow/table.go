package flow

import "firestige.xyz/spindle/internal/core"

// Table maps 64-bit flow keys to session indices. Sessions live in a
// pre-allocated pool with a free list; indices are stable until Remove. Each
// session is reachable by exactly two keys (forward and reverse alias), both
// resolving to the same index.
type Table struct {
	index    map[uint64]uint32
	sessions []Session
	free     []uint32
}

// NewTable creates a table backed by a pool of max sessions.
func NewTable(max int) *Table {
	t := &Table{
		index:    make(map[uint64]uint32, max),
		sessions: make([]Session, max),
		free:     make([]uint32, 0, max),
	}
	// Hand out low indices first.
	for i := max - 1; i >= 0; i-- {
		t.free = append(t.free, uint32(i))
	}
	return t
}

// Lookup resolves a key to its session, or nil.
func (t *Table) Lookup(key uint64) *Session {
	idx, ok := t.index[key]
	if !ok {
		return nil
	}
	return &t.sessions[idx]
}

// Insert allocates a session slot from the pool and installs key as its
// forward key. Returns ErrPoolExhausted when no slot is free; live sessions
// are never evicted to make room.
func (t *Table) Insert(key uint64, variant core.Variant) (*Session, error) {
	if len(t.free) == 0 {
		return nil, core.ErrPoolExhausted
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	s := &t.sessions[idx]
	s.reset(idx, variant)
	s.Key = key
	t.index[key] = idx
	return s, nil
}

// Alias installs the reverse key for an existing session.
func (t *Table) Alias(key uint64, s *Session) {
	s.KeyReverse = key
	t.index[key] = s.Index
}

// Remove deletes both key aliases and returns the slot to the pool.
func (t *Table) Remove(s *Session) {
	delete(t.index, s.Key)
	delete(t.index, s.KeyReverse)
	t.free = append(t.free, s.Index)
}

// Get returns the session at a pool index. The caller must know the index
// is live.
func (t *Table) Get(index uint32) *Session {
	return &t.sessions[index]
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	return len(t.sessions) - len(t.free)
}
