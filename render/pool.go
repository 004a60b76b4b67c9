// Package render runs jobs on a local pool of goroutines.
package render

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	fractal "github.com/marben/distfrac"
	"github.com/marben/distfrac/internal/coord"
)

const (
	// DefaultBunchRows gives several bunches per worker on typical images so
	// fast workers pick up the slack of slow ones.
	DefaultBunchRows = 6

	progressEveryRows = 50
)

// Options configures a dispatch. All callbacks are delivered through Loop,
// never concurrently.
type Options struct {
	BunchRows int

	OnStart    func(job *fractal.Job)
	OnProgress func(worker, percent int)
	OnFinish   func(job *fractal.Job)

	// Loop receives the callbacks. When nil the pool runs a private loop
	// that stops after OnFinish.
	Loop *Loop

	Renderer fractal.Renderer
	Logger   *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.BunchRows <= 0 {
		o.BunchRows = DefaultBunchRows
	}
	if o.Renderer == nil {
		o.Renderer = fractal.Sampler{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// publisher keeps the highest progress value seen and forwards only
// increases, in order.
type publisher struct {
	mu sync.Mutex
	v  int
}

func (p *publisher) raise(v int, post func(v int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v <= p.v {
		return
	}
	p.v = v
	post(v)
}

// Dispatch starts numThreads workers on job and returns at once. The
// returned channel is closed after OnFinish has been posted; with the
// private loop, after every callback has run. Unless the job was canceled,
// the buffer is downsampled back to the target size before OnFinish.
func Dispatch(numThreads int, job *fractal.Job, opts Options) <-chan struct{} {
	opts.applyDefaults()
	numThreads = max(numThreads, 1)

	loop := opts.Loop
	var (
		stopLoop context.CancelFunc
		loopDone chan struct{}
	)
	if loop == nil {
		loop = NewLoop()
		var ctx context.Context
		ctx, stopLoop = context.WithCancel(context.Background())
		loopDone = make(chan struct{})
		go func() {
			defer close(loopDone)
			loop.Run(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		supervise(numThreads, job, opts, loop)
		if stopLoop != nil {
			stopLoop()
			<-loopDone
		}
	}()
	return done
}

// Render runs job synchronously. Canceling ctx cancels the job; the error is
// then ctx.Err() and the buffer keeps its supersampled size.
func Render(ctx context.Context, numThreads int, job *fractal.Job, opts Options) error {
	if err := ctx.Err(); err != nil {
		job.Cancel()
		return err
	}
	done := Dispatch(numThreads, job, opts)
	select {
	case <-done:
	case <-ctx.Done():
		job.Cancel()
		<-done
	}
	if job.IsCanceled() {
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.Canceled
	}
	return nil
}

func supervise(numThreads int, job *fractal.Job, opts Options, loop *Loop) {
	log := opts.Logger.With(zap.Stringer("job", job), zap.Uint64("stamp", job.Stamp))
	started := time.Now()

	if opts.OnStart != nil {
		loop.Post(func() { opts.OnStart(job) })
	}
	log.Debug("dispatching", zap.Int("threads", numThreads), zap.Int("bunch_rows", opts.BunchRows))

	cursor := coord.NewCursor(job.Height())
	pub := &publisher{}

	var wg sync.WaitGroup
	for i := range numThreads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			work(i, job, cursor, pub, opts, loop)
		}()
	}
	wg.Wait()

	if job.IsCanceled() {
		log.Debug("canceled", zap.Duration("elapsed", time.Since(started)))
	} else {
		job.ResizeBack()
		log.Debug("finished", zap.Duration("elapsed", time.Since(started)))
	}

	if opts.OnFinish != nil {
		loop.Post(func() { opts.OnFinish(job) })
	}
}

func work(id int, job *fractal.Job, cursor *coord.Cursor, pub *publisher, opts Options, loop *Loop) {
	height := job.Height()
	sinceReport := 0

	for !job.IsCanceled() {
		r, ok := cursor.Claim(opts.BunchRows)
		if !ok {
			return
		}

		opts.Renderer.RenderRows(job.Params, r.Start, r.End, job.Rows(r.Start, r.End))

		sinceReport += r.Rows()
		if opts.OnProgress == nil || (sinceReport < progressEveryRows && r.End < height) {
			continue
		}
		sinceReport = 0

		percent := int(100.0 * float32(r.End) / float32(height))
		pub.raise(percent, func(v int) {
			loop.Post(func() { opts.OnProgress(id, v) })
		})
	}
}
