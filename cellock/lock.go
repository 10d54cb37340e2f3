// Package cellock implements the Subtree Lock Manager: per-cell,
// per-particle-kind try-locks coupled with a parent "hold" counter, giving a
// worker exclusive write access to a cell's particle array without ever
// blocking a sibling's unrelated work.
//
// Each (cell, kind) pair is guarded by one atomic.Uint64 living directly on
// types.Cell, packed as bit 63 = locked flag, bits 0-62 = hold count — a
// single CAS'd integer per cell per kind, per the design notes, generalising
// the teacher's single-bit atomic address word (the lock-free load/store
// idiom of quantum's space/address.go) to a lock-plus-counter word.
package cellock

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/outofforest/sphtree/types"
)

const lockedBit = uint64(1) << 63

// ErrBusy is the transient-contention status: the caller should re-queue
// its task rather than treat this as a failure.
var ErrBusy = errors.New("cell is busy")

// CellGetter resolves a CellIndex to its cell. It is the minimal view
// cellock needs of the arena, avoiding a hard dependency on package arena.
type CellGetter interface {
	Get(types.CellIndex) *types.Cell
}

func holdOf(word uint64) uint64 { return word &^ lockedBit }

func isLocked(word uint64) bool { return word&lockedBit != 0 }

// tryLockWord attempts to set the locked bit on *word without blocking,
// retrying the CAS only while the observed word is not itself locked
// (contention from a concurrent hold-bump is expected and retried; an
// already-locked word is immediately busy).
func tryLockWord(word *atomic.Uint64) bool {
	for {
		cur := word.Load()
		if isLocked(cur) {
			return false
		}
		if word.CompareAndSwap(cur, cur|lockedBit) {
			return true
		}
	}
}

func unlockWord(word *atomic.Uint64) {
	for {
		cur := word.Load()
		if word.CompareAndSwap(cur, cur&^lockedBit) {
			return
		}
	}
}

func bumpHold(word *atomic.Uint64, delta int64) {
	for {
		cur := word.Load()
		h := int64(holdOf(cur))
		next := uint64(h+delta) | (cur & lockedBit)
		if word.CompareAndSwap(cur, next) {
			return
		}
	}
}

func holdCount(word *atomic.Uint64) uint64 { return holdOf(word.Load()) }

// TryLock attempts to acquire the write-lock for kind on cell idx. On
// success (ok==true) the caller is the sole writer of that cell's slice of
// the named particle kind until the matching Unlock; every strict ancestor
// has had its hold counter bumped by one and released again, so siblings of
// idx remain free to proceed independently. On busy (ok==false) global
// state is left exactly as it was: no state is mutated on the failure path.
func TryLock(cells CellGetter, idx types.CellIndex, kind types.LockKind) (ok bool) {
	c := cells.Get(idx)
	word := &c.Locks[kind]

	if holdCount(word) > 0 {
		return false
	}
	if !tryLockWord(word) {
		return false
	}
	// Recheck after acquiring: a descendant may have bumped our hold
	// between the check above and the CAS that locked us.
	if holdCount(word) > 0 {
		unlockWord(word)
		return false
	}

	bumped := make([]types.CellIndex, 0, c.Depth)
	for p := c.Parent; p != types.NoCell; {
		pc := cells.Get(p)
		pw := &pc.Locks[kind]
		if !tryLockWord(pw) {
			for i := len(bumped) - 1; i >= 0; i-- {
				bumpHold(&cells.Get(bumped[i]).Locks[kind], -1)
			}
			unlockWord(word)
			return false
		}
		bumpHold(pw, 1)
		unlockWord(pw)
		bumped = append(bumped, p)
		p = pc.Parent
	}

	return true
}

// Unlock releases the write-lock for kind on cell idx and decrements the
// hold counter on every strict ancestor. There is no restriction on unlock
// order across kinds.
func Unlock(cells CellGetter, idx types.CellIndex, kind types.LockKind) {
	c := cells.Get(idx)
	unlockWord(&c.Locks[kind])
	for p := c.Parent; p != types.NoCell; {
		pc := cells.Get(p)
		bumpHold(&pc.Locks[kind], -1)
		p = pc.Parent
	}
}

// Held reports whether idx is currently held (locked or held by a
// descendant) for kind, a read-only diagnostic used by tests; it is not
// part of the locking protocol itself.
func Held(cells CellGetter, idx types.CellIndex, kind types.LockKind) bool {
	word := cells.Get(idx).Locks[kind].Load()
	return isLocked(word) || holdOf(word) > 0
}
