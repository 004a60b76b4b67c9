package fractal

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Job is one render request. It owns a private copy of the parameters whose
// size already includes the supersampling factor.
type Job struct {
	Params        *Parameters
	Supersampling int
	Stamp         uint64

	// Pixels is written by workers on disjoint row ranges.
	Pixels []ARGB

	cropped  bool
	canceled atomic.Bool
}

// NewJob clones p and allocates a full-size buffer.
func NewJob(p *Parameters, supersampling int, stamp uint64) *Job {
	return newJob(p, supersampling, stamp, -1)
}

// NewCroppedJob clones p and allocates a buffer for cropRows rows only. It is
// used by nodes that render one row range at a time.
func NewCroppedJob(p *Parameters, cropRows int) *Job {
	return newJob(p, 1, 0, cropRows)
}

func newJob(p *Parameters, supersampling int, stamp uint64, cropRows int) *Job {
	if supersampling < 1 {
		supersampling = 1
	}
	j := &Job{
		Params:        p.Clone(),
		Supersampling: supersampling,
		Stamp:         stamp,
	}
	j.Params.Width *= supersampling
	j.Params.Height *= supersampling

	if cropRows < 0 {
		j.Pixels = make([]ARGB, j.Params.Width*j.Params.Height)
	} else {
		j.Pixels = make([]ARGB, j.Params.Width*cropRows)
		j.cropped = true
	}
	return j
}

func (j *Job) Width() int  { return j.Params.Width }
func (j *Job) Height() int { return j.Params.Height }

func (j *Job) Cropped() bool { return j.cropped }

// Rows returns the part of the buffer that holds rows [start, end).
func (j *Job) Rows(start, end int) []ARGB {
	w := j.Params.Width
	if j.cropped {
		return j.Pixels[:(end-start)*w]
	}
	return j.Pixels[start*w : end*w]
}

// ResizeBack downsamples the buffer by the supersampling factor and restores
// the target size.
func (j *Job) ResizeBack() {
	if j.Supersampling < 2 {
		return
	}
	j.Pixels, _, _ = Downsample(j.Pixels, j.Width(), j.Height(), j.Supersampling)
	j.Params.Width /= j.Supersampling
	j.Params.Height /= j.Supersampling
	j.Supersampling = 1
}

func (j *Job) Cancel()          { j.canceled.Store(true) }
func (j *Job) IsCanceled() bool { return j.canceled.Load() }

func (j *Job) String() string {
	return fmt.Sprintf("Job[%dx%d]", j.Width(), j.Height())
}

// StampSource hands out increasing stamps.
type StampSource struct {
	last atomic.Uint64
}

func (s *StampSource) Next() uint64 {
	return s.last.Add(1)
}

// StampTracker keeps the highest stamp seen so results of superseded
// requests can be dropped.
type StampTracker struct {
	mu     sync.Mutex
	latest uint64
}

// Accept reports whether stamp is at least as new as anything accepted
// before, and records it.
func (t *StampTracker) Accept(stamp uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stamp < t.latest {
		return false
	}
	t.latest = stamp
	return true
}

func (t *StampTracker) Latest() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}
