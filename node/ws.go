package node

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const wsReadLimit = 1 << 24

// WSListener implements net.Listener on top of an http endpoint: every
// websocket accepted by ServeHTTP is handed to Accept as a binary net.Conn.
type WSListener struct {
	ch     chan *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	addr   wsAddr
	log    *zap.Logger

	closeOnce sync.Once
}

func NewWSListener(ctx context.Context, addr string, log *zap.Logger) *WSListener {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WSListener{
		ch:     make(chan *websocket.Conn),
		ctx:    ctx,
		cancel: cancel,
		addr:   wsAddr{addr: addr},
		log:    log,
	}
}

// ServeHTTP upgrades the request and blocks until the connection has been
// accepted or the listener is closed.
func (l *WSListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		l.log.Warn("websocket accept", zap.Error(err))
		return
	}
	c.SetReadLimit(wsReadLimit)

	select {
	case l.ch <- c:
	case <-l.ctx.Done():
		c.Close(websocket.StatusGoingAway, "node shutting down")
	}
}

func (l *WSListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.ch:
		return websocket.NetConn(l.ctx, c, websocket.MessageBinary), nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

func (l *WSListener) Addr() net.Addr {
	return l.addr
}

func (l *WSListener) Close() error {
	l.closeOnce.Do(l.cancel)
	return nil
}

type wsAddr struct {
	addr string
}

func (a wsAddr) Network() string { return "ws" }
func (a wsAddr) String() string  { return a.addr }
