package ratetable

import "sync/atomic"

// Table publishes the current Snapshot. Readers call Current once per
// request and keep using that snapshot; Swap replaces it atomically.
type Table struct {
	current atomic.Pointer[Snapshot]
}

// NewTable creates a table serving initial.
func NewTable(initial *Snapshot) *Table {
	t := &Table{}
	t.current.Store(initial)
	return t
}

// Current returns the snapshot in effect right now.
func (t *Table) Current() *Snapshot {
	return t.current.Load()
}

// Swap installs next and returns the snapshot it replaced.
func (t *Table) Swap(next *Snapshot) *Snapshot {
	return t.current.Swap(next)
}
