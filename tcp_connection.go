package reactor

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/loopcore/reactor/rtime"
)

type connState int32

const (
	connDisconnected connState = iota
	connConnecting
	connConnected
	connDisconnecting
)

func (s connState) String() string {
	switch s {
	case connDisconnected:
		return "disconnected"
	case connConnecting:
		return "connecting"
	case connConnected:
		return "connected"
	case connDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

const defaultHighWaterMark = 64 * 1024 * 1024

// Conn is a single TCP connection, usable from both server and client
// contexts, grounded on
// original_source/muduo-cpp11/net/tcp_connection.cpp.
type Conn struct {
	loop *EventLoop
	name string
	fd   int

	// state is accessed from any goroutine (Send, Shutdown, ForceClose, and
	// their status accessors are all documented as callable off the owning
	// loop), so it is a typed atomic rather than a plain field.
	state   atomic.Int32
	channel *Channel

	localAddr InetAddress
	peerAddr  InetAddress

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback

	highWaterMark int

	inputBuffer  Buffer
	outputBuffer Buffer

	context interface{}
}

// NewConn wraps an already-connected socket. Callers should not construct
// this directly; it is used internally by Server and Client.
func NewConn(loop *EventLoop, name string, sockFd int, localAddr, peerAddr InetAddress) *Conn {
	c := &Conn{
		loop:          loop,
		name:          name,
		fd:            sockFd,
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		highWaterMark: defaultHighWaterMark,

		connectionCallback: defaultConnectionCallback,
		messageCallback:    defaultMessageCallback,
	}
	c.state.Store(int32(connConnecting))
	c.inputBuffer = *NewBuffer(0)
	c.outputBuffer = *NewBuffer(0)

	c.channel = NewChannel(loop, sockFd)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)

	setKeepAlive(sockFd, true)

	return c
}

// Name returns this connection's diagnostic name, unique within its owning
// Server or Client.
func (c *Conn) Name() string { return c.name }

// Loop returns the EventLoop this connection is bound to.
func (c *Conn) Loop() *EventLoop { return c.loop }

// LocalAddress returns the local endpoint.
func (c *Conn) LocalAddress() InetAddress { return c.localAddr }

// PeerAddress returns the remote endpoint.
func (c *Conn) PeerAddress() InetAddress { return c.peerAddr }

func (c *Conn) getState() connState  { return connState(c.state.Load()) }
func (c *Conn) setState(s connState) { c.state.Store(int32(s)) }

// Connected reports whether the connection is currently established.
func (c *Conn) Connected() bool { return c.getState() == connConnected }

// Disconnected reports whether the connection has fully torn down.
func (c *Conn) Disconnected() bool { return c.getState() == connDisconnected }

// Fd returns the underlying file descriptor. Advanced use only.
func (c *Conn) Fd() int { return c.fd }

// InputBuffer exposes the raw input buffer. Advanced use only.
func (c *Conn) InputBuffer() *Buffer { return &c.inputBuffer }

// OutputBuffer exposes the raw output buffer. Advanced use only.
func (c *Conn) OutputBuffer() *Buffer { return &c.outputBuffer }

// Context returns the opaque per-connection user value.
func (c *Conn) Context() interface{} { return c.context }

// SetContext attaches an opaque per-connection user value.
func (c *Conn) SetContext(ctx interface{}) { c.context = ctx }

// SetConnectionCallback installs the connect/disconnect notification hook.
func (c *Conn) SetConnectionCallback(f ConnectionCallback) { c.connectionCallback = f }

// SetMessageCallback installs the inbound-data hook.
func (c *Conn) SetMessageCallback(f MessageCallback) { c.messageCallback = f }

// SetWriteCompleteCallback installs the output-buffer-drained hook.
func (c *Conn) SetWriteCompleteCallback(f WriteCompleteCallback) { c.writeCompleteCallback = f }

// SetHighWaterMarkCallback installs the hook fired when output_buffer grows
// past mark bytes, and sets that threshold.
func (c *Conn) SetHighWaterMarkCallback(f HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = f
	c.highWaterMark = mark
}

// setCloseCallback is internal: used by Server/Client to learn when to
// drop the connection from their registries.
func (c *Conn) setCloseCallback(f CloseCallback) { c.closeCallback = f }

// SetTCPNoDelay toggles Nagle's algorithm on the underlying socket.
func (c *Conn) SetTCPNoDelay(on bool) { setTCPNoDelay(c.fd, on) }

// Send queues data for transmission. Safe to call from any goroutine: if
// called off the owning loop the bytes are copied and handed off via
// RunInLoop.
func (c *Conn) Send(data []byte) {
	if c.getState() != connConnected {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	cp := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(cp) })
}

// SendString is a convenience wrapper over Send.
func (c *Conn) SendString(s string) { c.Send([]byte(s)) }

// SendBuffer queues buf's entire readable region and empties buf, avoiding
// a copy when called from the owning loop.
func (c *Conn) SendBuffer(buf *Buffer) {
	if c.getState() != connConnected {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(buf.Peek())
		buf.RetrieveAll()
		return
	}
	s := buf.RetrieveAllAsString()
	c.loop.RunInLoop(func() { c.sendInLoop([]byte(s)) })
}

func (c *Conn) sendInLoop(data []byte) {
	c.loop.AssertInLoopThread()

	if c.getState() == connDisconnected {
		log().Warn("Conn.sendInLoop called on a disconnected connection", zap.String("name", c.name))
		return
	}

	var nwrote int
	remaining := len(data)
	faultError := false

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		if err == nil {
			nwrote = n
			remaining = len(data) - n
			if remaining == 0 && c.writeCompleteCallback != nil {
				cb := c.writeCompleteCallback
				c.loop.QueueInLoop(func() { cb(c) })
			}
		} else {
			nwrote = 0
			if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
				log().Error("Conn.sendInLoop write failed", zapErr(err))
				if err == unix.EPIPE || err == unix.ECONNRESET {
					faultError = true
				}
			}
		}
	}

	if !faultError && remaining > 0 {
		oldLen := c.outputBuffer.ReadableBytes()
		if oldLen+remaining >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
			cb := c.highWaterMarkCallback
			total := oldLen + remaining
			c.loop.QueueInLoop(func() { cb(c, total) })
		}
		c.outputBuffer.Append(data[nwrote:])
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

// Shutdown half-closes the write side once any queued output has drained.
// Not safe to call concurrently with another Shutdown/ForceClose on the
// same connection.
func (c *Conn) Shutdown() {
	if c.getState() == connConnected {
		c.setState(connDisconnecting)
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *Conn) shutdownInLoop() {
	c.loop.AssertInLoopThread()
	if !c.channel.IsWriting() {
		shutdownWrite(c.fd)
	}
}

// ForceClose tears the connection down immediately, as if the peer had
// sent EOF.
func (c *Conn) ForceClose() {
	if s := c.getState(); s == connConnected || s == connDisconnecting {
		c.setState(connDisconnecting)
		c.loop.QueueInLoop(c.forceCloseInLoop)
	}
}

// ForceCloseWithDelay tears the connection down after delaySeconds, unless
// the connection is no longer alive by then (ForceClose does nothing once
// the state is disconnected).
func (c *Conn) ForceCloseWithDelay(delaySeconds float64) {
	if s := c.getState(); s == connConnected || s == connDisconnecting {
		c.setState(connDisconnecting)
		c.loop.RunAfter(delaySeconds, c.ForceClose)
	}
}

func (c *Conn) forceCloseInLoop() {
	c.loop.AssertInLoopThread()
	if s := c.getState(); s == connConnected || s == connDisconnecting {
		c.handleClose()
	}
}

// connectEstablished finalizes the connection after acceptance or a
// successful outbound connect: must run exactly once, on the owning loop.
func (c *Conn) connectEstablished() {
	c.loop.AssertInLoopThread()
	if c.getState() != connConnecting {
		panic("reactor: Conn.connectEstablished called twice")
	}
	c.setState(connConnected)
	c.channel.Tie(func() bool { return c.getState() != connDisconnected })
	c.channel.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// connectDestroyed finalizes teardown after the owning Server/Client has
// removed this connection from its registry: must run exactly once, on the
// owning loop.
func (c *Conn) connectDestroyed() {
	c.loop.AssertInLoopThread()
	if c.getState() == connConnected {
		c.setState(connDisconnected)
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.channel.Remove()
	closeSocket(c.fd)
}

func (c *Conn) handleRead(receiveTime rtime.Time) {
	c.loop.AssertInLoopThread()
	n, err := c.inputBuffer.ReadFd(c.fd)
	switch {
	case err == nil && n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, &c.inputBuffer, receiveTime)
		}
	case err == nil && n == 0:
		c.handleClose()
	case err == ErrWouldBlock:
		// spurious readiness, nothing to do
	default:
		log().Error("Conn.handleRead failed", zapErr(err))
		c.handleError()
	}
}

func (c *Conn) handleWrite() {
	c.loop.AssertInLoopThread()
	if !c.channel.IsWriting() {
		log().Debug("connection is down, no more writing", zap.String("name", c.name))
		return
	}

	n, err := unix.Write(c.fd, c.outputBuffer.Peek())
	if err != nil {
		log().Error("Conn.handleWrite failed", zapErr(err))
		return
	}
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			cb := c.writeCompleteCallback
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if c.getState() == connDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *Conn) handleClose() {
	c.loop.AssertInLoopThread()
	if s := c.getState(); s != connConnected && s != connDisconnecting {
		return
	}
	// The fd itself is closed later, in connectDestroyed, once the owner
	// has dropped this connection from its registry.
	c.setState(connDisconnected)
	c.channel.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *Conn) handleError() {
	errno := getSocketError(c.fd)
	log().Error("Conn.handleError", zap.String("name", c.name), zap.Int("errno", errno))
}
