// Package netrender drives a render across remote nodes. Every node is asked
// for its thread count and gets one connection per thread; all connections
// claim bunches from one shared coordinator and stream rows into one buffer.
package netrender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	fractal "github.com/marben/distfrac"
	"github.com/marben/distfrac/internal/coord"
	"github.com/marben/distfrac/output"
	"github.com/marben/distfrac/protocol"
)

const (
	DefaultBunchRows   = 16
	DefaultDialTimeout = 10 * time.Second
)

var (
	ErrNoConnections = errors.New("no worker connection could be established")
	ErrAllFailed     = errors.New("all worker connections failed")
	ErrIncomplete    = errors.New("image incomplete")
)

var stamps fractal.StampSource

type Settings struct {
	// Endpoints are node addresses, host:port or ws:// URLs.
	Endpoints []string
	Params    *fractal.Parameters

	Supersampling int
	// BunchRows is the bunch size in rows.
	BunchRows int
	// BunchGroups is the number of bunches claimed at once. Zero asks each
	// node through QUERY_BUNCH.
	BunchGroups int

	// Output, when set, is the file the finished image is saved to.
	Output string
	// Stamp identifies the run's job. Zero draws the next process-wide stamp.
	Stamp uint64

	DialTimeout time.Duration
	Console     *Console
	Logger      *zap.Logger

	// OnFinish is called once with the final result, before Done is closed.
	OnFinish func(Result)
}

func (s *Settings) validate() error {
	if len(s.Endpoints) == 0 {
		return errors.New("netrender: no endpoints")
	}
	if s.Params == nil {
		return errors.New("netrender: no parameters")
	}
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("netrender: %w", err)
	}
	if s.Supersampling < 1 {
		s.Supersampling = 1
	}
	if s.BunchRows < 1 {
		s.BunchRows = DefaultBunchRows
	}
	if s.DialTimeout <= 0 {
		s.DialTimeout = DefaultDialTimeout
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Stamp == 0 {
		s.Stamp = stamps.Next()
	}
	return nil
}

type Status int

const (
	Succeeded Status = iota
	Failed
	Canceled
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Result struct {
	Status Status
	// Job holds the image. It is downsampled to the target size only on
	// success.
	Job *fractal.Job
	Err error

	Elapsed     time.Duration
	Connections int
	Failures    int
	// DoneRows counts the rows delivered, at the supersampled height.
	DoneRows int
}

// Run is a distributed render in progress.
type Run struct {
	id       uuid.UUID
	settings Settings
	job      *fractal.Job
	bunches  *coord.Bunches
	log      *zap.Logger
	con      *Console

	ctx    context.Context
	cancel context.CancelFunc

	connections atomic.Int32
	failures    atomic.Int32

	done   chan struct{}
	result Result
}

// Start validates s and launches the run in the background.
func Start(ctx context.Context, s Settings) (*Run, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	job := fractal.NewJob(s.Params, s.Supersampling, s.Stamp)
	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:       id,
		settings: s,
		job:      job,
		bunches:  coord.NewBunches(job.Height(), s.BunchRows),
		log:      s.Logger.With(zap.Stringer("run", id), zap.Uint64("stamp", s.Stamp)),
		con:      s.Console,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Render runs s to completion. The error is the result's error.
func Render(ctx context.Context, s Settings) (Result, error) {
	r, err := Start(ctx, s)
	if err != nil {
		return Result{Status: Failed, Err: err}, err
	}
	res := r.Result()
	return res, res.Err
}

func (r *Run) ID() uuid.UUID         { return r.id }
func (r *Run) Job() *fractal.Job     { return r.job }
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel stops the run. Connections finish the rows they are rendering and
// exit without claiming more.
func (r *Run) Cancel() {
	r.job.Cancel()
	r.cancel()
}

// Result waits for the run to end.
func (r *Run) Result() Result {
	<-r.done
	return r.result
}

// Progress returns the number of finished bunches and the total.
func (r *Run) Progress() (done, total int) {
	return r.bunches.Progress()
}

func (r *Run) canceled() bool {
	return r.job.IsCanceled() || r.ctx.Err() != nil
}

func (r *Run) run() {
	defer close(r.done)
	defer r.cancel()

	started := time.Now()
	r.log.Info("distributed render started",
		zap.Stringer("job", r.job),
		zap.Strings("endpoints", r.settings.Endpoints),
		zap.Int("bunches", r.bunches.Len()),
		zap.Int("bunch_rows", r.bunches.BunchRows()))

	var wg sync.WaitGroup
	for _, ep := range r.settings.Endpoints {
		if r.canceled() {
			break
		}
		cpus, groups, err := r.handshake(ep)
		if err != nil {
			r.con.Failure("main", "Could not use %s: %v", ep, err)
			r.log.Warn("handshake failed", zap.String("endpoint", ep), zap.Error(err))
			continue
		}
		for k := range cpus {
			r.connections.Add(1)
			r.con.Event("main", "Launching client %d of %d for %s", k+1, cpus, ep)
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.work(ep, k, groups)
			}()
		}
	}
	wg.Wait()

	res := Result{
		Job:         r.job,
		Connections: int(r.connections.Load()),
		Failures:    int(r.failures.Load()),
		DoneRows:    r.bunches.DoneRows(),
	}
	res.Status, res.Err = r.outcome(res)
	res.Elapsed = time.Since(started)

	switch res.Status {
	case Succeeded:
		r.con.Success("main", "Job done in %.3f seconds.", res.Elapsed.Seconds())
		r.finish(&res)
	case Canceled:
		r.con.Event("main", "Canceled.")
	default:
		r.con.Failure("main", "Failed: %v", res.Err)
	}

	fields := []zap.Field{
		zap.Stringer("status", res.Status),
		zap.Duration("elapsed", res.Elapsed),
		zap.Int("connections", res.Connections),
		zap.Int("failures", res.Failures),
		zap.Int("done_rows", res.DoneRows),
	}
	if res.Err != nil {
		r.log.Error("distributed render ended", append(fields, zap.Error(res.Err))...)
	} else {
		r.log.Info("distributed render ended", fields...)
	}

	r.result = res
	if r.settings.OnFinish != nil {
		r.settings.OnFinish(res)
	}
}

func (r *Run) outcome(res Result) (Status, error) {
	switch {
	case r.canceled():
		return Canceled, context.Canceled
	case res.Connections == 0:
		return Failed, ErrNoConnections
	case res.Failures == res.Connections:
		return Failed, ErrAllFailed
	case !r.bunches.Complete():
		done, total := r.bunches.Progress()
		return Failed, fmt.Errorf("%w: %d of %d bunches done", ErrIncomplete, done, total)
	}
	return Succeeded, nil
}

// finish downsamples and saves a successful result. A failed save turns the
// result into a failure.
func (r *Run) finish(res *Result) {
	if r.job.Supersampling > 1 {
		r.con.Event("main", "Downscaling...")
		r.job.ResizeBack()
	}

	path := r.settings.Output
	if path == "" {
		return
	}
	r.con.Event("main", "Saving the image to %s...", path)
	if err := output.Save(path, r.job.Pixels, r.job.Width(), r.job.Height()); err != nil {
		r.con.Failure("main", "Saving failed: %v", err)
		res.Status, res.Err = Failed, err
		return
	}
	r.log.Info("image saved", zap.String("path", path))
}

// handshake queries a node over a short-lived control connection.
func (r *Run) handshake(ep string) (cpus, groups int, err error) {
	r.con.Event("main", "Connecting to %s...", ep)
	c, err := r.dial(ep)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = c.Abort()
		}
	}()

	groups = r.settings.BunchGroups
	if groups < 1 {
		if groups, err = c.QueryBunch(); err != nil {
			return 0, 0, err
		}
		r.con.Event("main", "Bunches per claim: %d", groups)
	}
	if cpus, err = c.QueryCPUs(); err != nil {
		return 0, 0, err
	}
	r.con.Event("main", "Number of CPUs: %d", cpus)

	r.con.Event("main", "Closing control connection with %s", ep)
	if err = c.Close(); err != nil {
		return 0, 0, err
	}
	return max(cpus, 1), max(groups, 1), nil
}

func (r *Run) dial(ep string) (*protocol.Client, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.settings.DialTimeout)
	defer cancel()
	return protocol.Dial(ctx, ep)
}

// work is one worker connection. On error its bunches go back to FREE.
func (r *Run) work(ep string, slot, groups int) {
	who := fmt.Sprintf("%s#%d", ep, slot+1)
	id := r.bunches.NewWorker()
	log := r.log.With(zap.String("worker", who), zap.Int32("worker_id", int32(id)))

	err := r.renderBunches(who, id, ep, groups)
	if err != nil {
		r.failures.Add(1)
		n := r.bunches.Release(id)
		r.con.Failure(who, "Error: %v (%d bunches released)", err, n)
		log.Warn("worker failed", zap.Error(err), zap.Int("released", n))
		return
	}
	r.bunches.Finish(id)
	log.Debug("worker finished")
}

func (r *Run) renderBunches(who string, id coord.WorkerID, ep string, groups int) error {
	r.con.Event(who, "Connecting...")
	c, err := r.dial(ep)
	if err != nil {
		return err
	}
	defer c.Abort()
	r.con.Event(who, "Connected.")

	if err := c.SendParams(r.job.Params, r.job.Width(), r.job.Height()); err != nil {
		return err
	}
	if err := c.SendRowCount(groups * r.bunches.BunchRows()); err != nil {
		return err
	}

	for !r.canceled() {
		rows, ok := r.bunches.Next(r.ctx, id, groups)
		if !ok {
			break
		}
		r.con.Event(who, "Rows %d -> %d", rows.Start, rows.End)
		if err := c.RenderRows(rows.Start, rows.End, r.job.Rows(rows.Start, rows.End)); err != nil {
			return err
		}
	}

	if r.canceled() {
		r.con.Event(who, "Canceled. Closing.")
	} else {
		r.con.Event(who, "No more bunches left. Closing.")
	}
	// every claimed row has arrived; a failed goodbye loses nothing
	if err := c.Close(); err != nil {
		r.log.Debug("close", zap.String("worker", who), zap.Error(err))
	}
	return nil
}
