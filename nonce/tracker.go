// Package nonce tracks the local transaction sequence number of the sending account.
package nonce

import "sync/atomic"

// Tracker holds the next nonce to sign with for a single account.
//
// It has exactly one writer, the submission loop. Reads from other goroutines
// (progress reporting) are safe; concurrent Advance/Reset calls are not
// coordinated and must not happen.
type Tracker struct {
	next atomic.Uint64
}

// NewTracker creates a tracker starting at the given authoritative nonce.
func NewTracker(start uint64) *Tracker {
	t := &Tracker{}
	t.next.Store(start)
	return t
}

// Current returns the nonce the next transaction must be signed with.
func (t *Tracker) Current() uint64 {
	return t.next.Load()
}

// Reset replaces the local value with the node's authoritative nonce.
// Anything signed against the previous value must be discarded.
func (t *Tracker) Reset(authoritative uint64) {
	t.next.Store(authoritative)
}

// Advance moves to the following nonce after an accepted submission.
func (t *Tracker) Advance() {
	t.next.Add(1)
}
