package protocol

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	fractal "github.com/marben/distfrac"
)

// wsReadLimit bounds a single websocket message; pixel rows are streamed in
// messages of at most a few kilobytes.
const wsReadLimit = 1 << 24

// Client speaks the node protocol over one connection. It is not safe for
// concurrent use; drivers open one Client per worker slot.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	width int
}

func NewClient(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

// Dial connects to a node. addr is host:port (the port defaults to
// DefaultPort) or a ws:// or wss:// URL of a node's websocket endpoint.
func Dial(ctx context.Context, addr string) (*Client, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		c, _, err := websocket.Dial(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("websocket.Dial %s: %w", addr, err)
		}
		c.SetReadLimit(wsReadLimit)
		// the connection outlives the dial context
		return NewClient(websocket.NetConn(context.Background(), c, websocket.MessageBinary)), nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", WithDefaultPort(addr))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// WithDefaultPort appends DefaultPort to addr if it has no port.
func WithDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
}

func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Client) send(cmd Command, args ...int32) error {
	if err := WriteCommand(c.w, cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	for _, a := range args {
		if err := WriteInt(c.w, a); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	return nil
}

func (c *Client) flush(cmd Command) error {
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

func (c *Client) query(cmd Command, args ...int32) (int32, error) {
	if err := c.send(cmd, args...); err != nil {
		return 0, err
	}
	if err := c.flush(cmd); err != nil {
		return 0, err
	}
	v, err := ReadInt(c.r)
	if err != nil {
		return 0, fmt.Errorf("%s reply: %w", cmd, err)
	}
	return v, nil
}

// Ping sends challenge and returns the node's reply, challenge+1 for a
// healthy node.
func (c *Client) Ping(challenge int32) (int32, error) {
	return c.query(CmdPing, challenge)
}

// QueryCPUs returns the number of worker threads the node advertises.
func (c *Client) QueryCPUs() (int, error) {
	v, err := c.query(CmdQueryCPUs)
	return int(v), err
}

// QueryBunch returns the number of bunches the node prefers per claim.
func (c *Client) QueryBunch() (int, error) {
	v, err := c.query(CmdQueryBunch)
	return int(v), err
}

// SendParams makes p, at width x height, the connection's active job.
func (c *Client) SendParams(p *fractal.Parameters, width, height int) error {
	if err := c.send(CmdSendParams); err != nil {
		return err
	}
	// WriteTo marks its receiver saved; p may be shared between connections.
	if _, err := p.Clone().WriteTo(c.w); err != nil {
		return fmt.Errorf("%s: %w", CmdSendParams, err)
	}
	for _, v := range []int{width, height} {
		if err := WriteInt(c.w, int32(v)); err != nil {
			return fmt.Errorf("%s: %w", CmdSendParams, err)
		}
	}
	c.width = width
	return nil
}

// SendRowCount asks the node to size its buffer for rows rows.
func (c *Client) SendRowCount(rows int) error {
	return c.send(CmdSendRowCount, int32(rows))
}

// RenderRows has the node render rows [start, end) and reads the pixels
// into dst, which must hold (end-start)*width values.
func (c *Client) RenderRows(start, end int, dst []fractal.ARGB) error {
	if c.width == 0 {
		return fmt.Errorf("%s: %w", CmdRenderRows, ErrNoParams)
	}
	n := (end - start) * c.width
	if n <= 0 || len(dst) < n {
		return fmt.Errorf("%s [%d,%d): %w", CmdRenderRows, start, end, ErrBadRange)
	}
	if err := c.send(CmdRenderRows, int32(start), int32(end)); err != nil {
		return err
	}
	if err := c.flush(CmdRenderRows); err != nil {
		return err
	}
	if err := ReadPixels(c.r, dst[:n]); err != nil {
		return fmt.Errorf("%s [%d,%d) pixels: %w", CmdRenderRows, start, end, err)
	}
	return nil
}

// Close sends CLOSE and closes the connection.
func (c *Client) Close() error {
	err := c.send(CmdClose)
	if err == nil {
		err = c.flush(CmdClose)
	}
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Abort closes the connection without saying goodbye.
func (c *Client) Abort() error {
	return c.conn.Close()
}
