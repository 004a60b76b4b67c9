// Package coord hands out row ranges of an image to concurrent workers.
//
// Cursor serves local pools, where workers cannot fail. Bunches serves
// distributed runs: every bunch of rows is FREE, DONE or owned by a worker,
// and a failed worker's bunches go back to FREE.
package coord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Range is a half-open row interval.
type Range struct {
	Start, End int
}

func (r Range) Rows() int { return r.End - r.Start }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Cursor is the local-mode coordinator: a single next-free-row counter.
type Cursor struct {
	mu     sync.Mutex
	next   int
	height int
}

func NewCursor(height int) *Cursor {
	return &Cursor{height: height}
}

// Claim takes the next rows rows. It returns false once the image is handed
// out completely.
func (c *Cursor) Claim(rows int) (Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next >= c.height {
		return Range{}, false
	}
	start := c.next
	c.next = min(c.next+rows, c.height)
	return Range{Start: start, End: c.next}, true
}

// WorkerID identifies the owner of a bunch. Valid IDs are >= FirstWorker.
type WorkerID int32

const (
	Free WorkerID = 0
	Done WorkerID = 1

	FirstWorker WorkerID = 2
)

// Bunches is the distributed-mode coordinator.
type Bunches struct {
	mu      sync.Mutex
	state   []WorkerID
	szBunch int
	height  int
	done    int

	// closed and replaced whenever a bunch becomes FREE or DONE
	changed chan struct{}

	nextID atomic.Int32
}

// NewBunches splits height rows into bunches of szBunch rows; the last one
// may be shorter.
func NewBunches(height, szBunch int) *Bunches {
	if szBunch < 1 {
		szBunch = 1
	}
	n := (height + szBunch - 1) / szBunch
	b := &Bunches{
		state:   make([]WorkerID, n),
		szBunch: szBunch,
		height:  height,
		changed: make(chan struct{}),
	}
	b.nextID.Store(int32(FirstWorker) - 1)
	return b
}

// NewWorker allocates a fresh worker ID.
func (b *Bunches) NewWorker() WorkerID {
	return WorkerID(b.nextID.Add(1))
}

func (b *Bunches) BunchRows() int { return b.szBunch }
func (b *Bunches) Len() int       { return len(b.state) }

// Claim marks the worker's previous range DONE, then gives it up to groups
// contiguous FREE bunches starting at the leftmost FREE one. It returns false
// when no bunch is FREE.
func (b *Bunches) Claim(worker WorkerID, groups int) (Range, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.claimLocked(worker, groups)
}

func (b *Bunches) claimLocked(worker WorkerID, groups int) (Range, bool) {
	b.setOwnedLocked(worker, Done)

	first := -1
	for i, s := range b.state {
		if s == Free {
			first = i
			break
		}
	}
	if first < 0 {
		return Range{}, false
	}

	last := first
	for last < len(b.state) && last-first < max(groups, 1) && b.state[last] == Free {
		b.state[last] = worker
		last++
	}

	return Range{
		Start: first * b.szBunch,
		End:   min(last*b.szBunch, b.height),
	}, true
}

// Next is Claim for workers that should stay around while others still hold
// bunches: when nothing is FREE but the image is incomplete it waits for a
// bunch to be released or finished. It returns false once every bunch is
// DONE or ctx ends.
func (b *Bunches) Next(ctx context.Context, worker WorkerID, groups int) (Range, bool) {
	for {
		b.mu.Lock()
		r, ok := b.claimLocked(worker, groups)
		if ok {
			b.mu.Unlock()
			return r, true
		}
		if b.done == len(b.state) {
			b.mu.Unlock()
			return Range{}, false
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return Range{}, false
		}
	}
}

// Release hands every bunch owned by worker back as FREE and returns how
// many there were. Call it when the worker failed before finishing.
func (b *Bunches) Release(worker WorkerID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setOwnedLocked(worker, Free)
}

// Finish marks every bunch owned by worker DONE.
func (b *Bunches) Finish(worker WorkerID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setOwnedLocked(worker, Done)
}

func (b *Bunches) setOwnedLocked(worker WorkerID, to WorkerID) int {
	if worker < FirstWorker {
		return 0
	}
	n := 0
	for i, s := range b.state {
		if s == worker {
			b.state[i] = to
			n++
		}
	}
	if n == 0 {
		return 0
	}
	if to == Done {
		b.done += n
	}
	close(b.changed)
	b.changed = make(chan struct{})
	return n
}

// Progress returns the number of DONE bunches and the total.
func (b *Bunches) Progress() (done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done, len(b.state)
}

// DoneRows counts the rows covered by DONE bunches.
func (b *Bunches) DoneRows() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows := 0
	for i, s := range b.state {
		if s == Done {
			rows += min((i+1)*b.szBunch, b.height) - i*b.szBunch
		}
	}
	return rows
}

func (b *Bunches) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done == len(b.state)
}

// Snapshot copies the current state, mainly for tests and diagnostics.
func (b *Bunches) Snapshot() []WorkerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]WorkerID, len(b.state))
	copy(out, b.state)
	return out
}
