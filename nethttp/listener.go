// Package nethttp adapts the reactor core's connection pipeline to the
// standard net.Listener/net.Conn interfaces, so collaborators written
// against net/http can be driven by the reactor's own Acceptor and I/O
// loop pool instead of net.Listen.
package nethttp

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/loopcore/reactor"
	"github.com/loopcore/reactor/rtime"
)

// bufferedConn makes a *reactor.Conn satisfy net.Conn: inbound bytes
// arrive through the message callback and are queued for Read; outbound
// bytes are handed straight to Conn.Send, which already does its own
// buffering and backpressure.
type bufferedConn struct {
	conn   *reactor.Conn
	reads  chan []byte
	closed chan struct{}

	pending []byte
}

func newBufferedConn(conn *reactor.Conn) *bufferedConn {
	c := &bufferedConn{
		conn:   conn,
		reads:  make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	conn.SetMessageCallback(c.onMessage)
	conn.SetConnectionCallback(c.onConnectionChange)
	return c
}

func (c *bufferedConn) onMessage(_ *reactor.Conn, buf *reactor.Buffer, _ rtime.Time) {
	data := append([]byte(nil), buf.Peek()...)
	buf.RetrieveAll()
	select {
	case c.reads <- data:
	case <-c.closed:
	}
}

func (c *bufferedConn) onConnectionChange(conn *reactor.Conn) {
	if !conn.Connected() {
		c.markClosed()
	}
}

func (c *bufferedConn) markClosed() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

// Read implements net.Conn.
func (c *bufferedConn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	select {
	case data := <-c.reads:
		n := copy(p, data)
		if n < len(data) {
			c.pending = data[n:]
		}
		return n, nil
	case <-c.closed:
		return 0, io.EOF
	}
}

// Write implements net.Conn.
func (c *bufferedConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, errors.New("nethttp: write on closed connection")
	default:
	}
	c.conn.Send(p)
	return len(p), nil
}

// Close implements net.Conn.
func (c *bufferedConn) Close() error {
	c.markClosed()
	c.conn.ForceClose()
	return nil
}

func (c *bufferedConn) LocalAddr() net.Addr  { return tcpAddr(c.conn.LocalAddress()) }
func (c *bufferedConn) RemoteAddr() net.Addr { return tcpAddr(c.conn.PeerAddress()) }

// SetDeadline and its halves are no-ops: the reactor core has no per-call
// deadline primitive, only the connection-level lifecycle ForceClose
// already exposes.
func (c *bufferedConn) SetDeadline(time.Time) error      { return nil }
func (c *bufferedConn) SetReadDeadline(time.Time) error  { return nil }
func (c *bufferedConn) SetWriteDeadline(time.Time) error { return nil }

func tcpAddr(a reactor.InetAddress) net.Addr {
	addr, _ := net.ResolveTCPAddr("tcp", a.String())
	return addr
}

// Listener wraps a *reactor.Server so its accepted connections are exposed
// through the standard net.Listener interface: same buffered-channel
// pipeline and Accept/Addr/Close contract as a conventional TCP listener
// adapter.
type Listener struct {
	addr     string
	pipeline chan net.Conn
	closed   chan struct{}
}

// NewListener wraps server, installing a connection callback that pushes
// every newly-established connection onto Listener's Accept channel.
// server must not already have a connection callback installed that the
// caller needs — NewListener overwrites it.
func NewListener(server *reactor.Server, addr string) *Listener {
	l := &Listener{
		addr:     addr,
		pipeline: make(chan net.Conn, 1024),
		closed:   make(chan struct{}),
	}
	server.SetConnectionCallback(l.onConnect)
	return l
}

func (l *Listener) onConnect(conn *reactor.Conn) {
	if !conn.Connected() {
		return
	}
	bc := newBufferedConn(conn)
	select {
	case l.pipeline <- bc:
	case <-l.closed:
		bc.Close()
	}
}

// Accept implements net.Listener.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c, ok := <-l.pipeline:
		if !ok {
			return nil, errors.New("nethttp: listener closed")
		}
		return c, nil
	case <-l.closed:
		return nil, errors.New("nethttp: listener closed")
	}
}

// Addr implements net.Listener.
func (l *Listener) Addr() net.Addr {
	addr, _ := net.ResolveTCPAddr("tcp", l.addr)
	return addr
}

// Close implements net.Listener.
func (l *Listener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}
