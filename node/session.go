package node

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	fractal "github.com/marben/distfrac"
	"github.com/marben/distfrac/protocol"
)

// session is the state of one connection: the last parameters and row count
// it received and the buffer rows are rendered into.
type session struct {
	id   uuid.UUID
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	cfg  Config
	log  *zap.Logger

	params   *fractal.Parameters
	stamp    uint64
	rowCount int
	job      *fractal.Job

	stamps *fractal.StampSource
	latest *fractal.StampTracker
}

func newSession(conn net.Conn, cfg Config, log *zap.Logger) *session {
	return &session{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
		cfg:  cfg,
		log:  log,
	}
}

// run handles commands until CLOSE or the peer disconnects. Any other way
// out is a protocol error.
func (s *session) run() error {
	for {
		cmd, err := protocol.ReadCommand(s.r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Debug("peer disconnected without CLOSE")
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
		if !cmd.Known() {
			return fmt.Errorf("%w: %d", protocol.ErrUnknownCommand, int32(cmd))
		}
		s.cfg.Metrics.Command(cmd.String())

		if cmd == protocol.CmdClose {
			return nil
		}
		if err := s.dispatch(cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
}

func (s *session) dispatch(cmd protocol.Command) error {
	switch cmd {
	case protocol.CmdPing:
		challenge, err := protocol.ReadInt(s.r)
		if err != nil {
			return err
		}
		return s.reply(challenge + 1)

	case protocol.CmdQueryCPUs:
		return s.reply(int32(s.cfg.Threads))

	case protocol.CmdQueryBunch:
		return s.reply(int32(s.cfg.BunchGroups))

	case protocol.CmdSendParams:
		return s.readParams()

	case protocol.CmdSendRowCount:
		n, err := protocol.ReadInt(s.r)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("%w: row count %d", protocol.ErrBadRange, n)
		}
		s.rowCount = int(n)
		if s.params != nil {
			s.newJob()
		}
		return nil

	case protocol.CmdRenderRows:
		return s.renderRows()
	}
	return fmt.Errorf("%w: %d", protocol.ErrUnknownCommand, int32(cmd))
}

func (s *session) reply(v int32) error {
	if err := protocol.WriteInt(s.w, v); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *session) readParams() error {
	p, err := fractal.ReadParameters(s.r)
	if err != nil {
		return err
	}
	w, err := protocol.ReadInt(s.r)
	if err != nil {
		return err
	}
	h, err := protocol.ReadInt(s.r)
	if err != nil {
		return err
	}
	if w < 1 || h < 1 || int64(w)*int64(h) > protocol.MaxPixels {
		return fmt.Errorf("%w: size %dx%d", protocol.ErrBadRange, w, h)
	}
	p.SetSize(int(w), int(h))
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBadParams, err)
	}
	s.params = p
	s.stamp = s.stamps.Next()
	s.newJob()
	s.log.Debug("parameters received", zap.Stringer("params", p), zap.Uint64("stamp", s.job.Stamp))
	return nil
}

// newJob allocates the buffer for the current parameters. A cropped buffer
// never holds more rows than the image.
func (s *session) newJob() {
	if s.rowCount > 0 {
		s.job = fractal.NewCroppedJob(s.params, min(s.rowCount, s.params.Height))
		s.job.Stamp = s.stamp
		return
	}
	s.job = fractal.NewJob(s.params, 1, s.stamp)
}

func (s *session) renderRows() error {
	start, err := protocol.ReadInt(s.r)
	if err != nil {
		return err
	}
	end, err := protocol.ReadInt(s.r)
	if err != nil {
		return err
	}
	if s.job == nil {
		return protocol.ErrNoParams
	}
	if start < 0 || end <= start || int(end) > s.job.Height() {
		return fmt.Errorf("%w: [%d,%d) of %d rows", protocol.ErrBadRange, start, end, s.job.Height())
	}
	if rows := int(end - start); s.job.Cropped() && rows > s.rowCount {
		// the driver claimed more than it announced
		s.log.Debug("growing row buffer", zap.Int("from", s.rowCount), zap.Int("to", rows))
		s.rowCount = rows
		s.newJob()
	}

	began := time.Now()
	dst := s.job.Rows(int(start), int(end))
	s.cfg.Renderer.RenderRows(s.job.Params, int(start), int(end), dst)
	s.cfg.Metrics.RowsRendered(int(end-start), time.Since(began))
	s.latest.Accept(s.job.Stamp)

	if err := protocol.WritePixels(s.w, dst); err != nil {
		return err
	}
	return s.w.Flush()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, protocol.ErrBadRange):
		return "bad_range"
	case errors.Is(err, protocol.ErrNoParams):
		return "no_params"
	case errors.Is(err, protocol.ErrBadParams),
		errors.Is(err, fractal.ErrVersionMismatch), errors.Is(err, fractal.ErrStopVersion):
		return "bad_params"
	}
	return "io"
}
