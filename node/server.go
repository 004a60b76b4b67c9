// Package node is the worker side of the protocol. Every accepted connection
// gets its own goroutine and its own state; rows are assigned by the driver.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	fractal "github.com/marben/distfrac"
	"github.com/marben/distfrac/internal/metrics"
)

// DefaultBunchGroups is the number of bunches a node asks drivers to claim
// at once.
const DefaultBunchGroups = 3

type Config struct {
	// Threads is advertised through QUERY_CPUS. Defaults to runtime.NumCPU().
	Threads int
	// BunchGroups is advertised through QUERY_BUNCH.
	BunchGroups int

	Renderer fractal.Renderer
	Logger   *zap.Logger
	Metrics  *metrics.Node
}

// Server serves the protocol on any number of listeners.
type Server struct {
	cfg Config
	log *zap.Logger

	sessions *xsync.Map[uuid.UUID, *session]

	// every parameter set received gets a stamp; latest is the newest one
	// rows were rendered for
	stamps fractal.StampSource
	latest fractal.StampTracker
}

func New(cfg Config) *Server {
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	if cfg.BunchGroups <= 0 {
		cfg.BunchGroups = DefaultBunchGroups
	}
	if cfg.Renderer == nil {
		cfg.Renderer = fractal.Sampler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: xsync.NewMap[uuid.UUID, *session](),
	}
}

func (s *Server) Threads() int { return s.cfg.Threads }

// Sessions returns the number of open connections.
func (s *Server) Sessions() int { return s.sessions.Size() }

// Serve accepts connections from l until ctx is done or l fails. name labels
// the listener in logs and metrics. Open connections are closed when ctx is
// done; Serve returns after their goroutines have exited.
func (s *Server) Serve(ctx context.Context, l net.Listener, name string) error {
	var conns sync.WaitGroup
	defer conns.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	log := s.log.With(zap.String("listener", name), zap.Stringer("addr", l.Addr()))
	log.Info("accepting connections", zap.Int("threads", s.cfg.Threads))

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("listener closed")
				return nil
			}
			return fmt.Errorf("accept on %s: %w", name, err)
		}

		sess := s.newSession(conn, name)
		conns.Add(1)
		go func() {
			defer conns.Done()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			s.handle(sess)
		}()
	}
}

func (s *Server) newSession(conn net.Conn, listener string) *session {
	id := uuid.New()
	sess := newSession(conn, s.cfg, s.log.With(
		zap.Stringer("session", id),
		zap.String("remote", conn.RemoteAddr().String()),
	))
	sess.id = id
	sess.stamps = &s.stamps
	sess.latest = &s.latest
	s.sessions.Store(id, sess)
	s.cfg.Metrics.ConnOpened(listener)
	return sess
}

func (s *Server) handle(sess *session) {
	defer func() {
		sess.conn.Close()
		s.cfg.Metrics.ConnClosed()
		s.sessions.Delete(sess.id)
	}()

	sess.log.Debug("connection opened")
	if err := sess.run(); err != nil {
		sess.log.Error("connection closed on error", zap.Error(err))
		s.cfg.Metrics.ProtocolError(errorKind(err))
		return
	}
	sess.log.Debug("connection closed")
}
