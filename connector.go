package reactor

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type connectorState int32

const (
	connectorDisconnected connectorState = iota
	connectorConnecting
	connectorConnected
)

const (
	initRetryDelayMs = 500
	maxRetryDelayMs  = 30000
)

// ConnectorNewConnectionFunc is invoked on the owning loop's goroutine once
// a non-blocking connect succeeds.
type ConnectorNewConnectionFunc func(sockFd int)

// Connector drives a single outbound connection attempt with exponential
// backoff retry, grounded on
// original_source/muduo-cpp11/net/connector.cpp.
type Connector struct {
	loop       *EventLoop
	serverAddr InetAddress

	connect      bool
	state        connectorState
	channel      *Channel
	retryDelayMs int

	newConnFn ConnectorNewConnectionFunc
}

// NewConnector creates a connector targeting serverAddr. Start must be
// called to begin connecting.
func NewConnector(loop *EventLoop, serverAddr InetAddress) *Connector {
	return &Connector{
		loop:         loop,
		serverAddr:   serverAddr,
		state:        connectorDisconnected,
		retryDelayMs: initRetryDelayMs,
	}
}

// SetNewConnectionCallback installs the success callback.
func (c *Connector) SetNewConnectionCallback(f ConnectorNewConnectionFunc) { c.newConnFn = f }

// Start begins connecting. Safe to call from any goroutine.
func (c *Connector) Start() {
	c.connect = true
	c.loop.RunInLoop(c.startInLoop)
}

func (c *Connector) startInLoop() {
	c.loop.AssertInLoopThread()
	if c.state != connectorDisconnected {
		panic("reactor: Connector.startInLoop called while not disconnected")
	}
	if c.connect {
		c.doConnect()
	}
}

// Stop cancels a pending connect attempt. Safe to call from any goroutine.
func (c *Connector) Stop() {
	c.connect = false
	c.loop.QueueInLoop(c.stopInLoop)
}

func (c *Connector) stopInLoop() {
	c.loop.AssertInLoopThread()
	if c.state == connectorConnecting {
		c.state = connectorDisconnected
		sockFd := c.removeAndResetChannel()
		c.retry(sockFd)
	}
}

// Restart resets backoff and begins connecting again. Must run on the
// owning loop.
func (c *Connector) Restart() {
	c.loop.AssertInLoopThread()
	c.state = connectorDisconnected
	c.retryDelayMs = initRetryDelayMs
	c.connect = true
	c.startInLoop()
}

func (c *Connector) doConnect() {
	fd := createNonblockingSocketOrDie()
	err := connectNonblocking(fd, c.serverAddr)
	var errno unix.Errno
	if e, ok := err.(unix.Errno); ok {
		errno = e
	}

	switch {
	case err == nil, errno == unix.EINPROGRESS, errno == unix.EINTR, errno == unix.EISCONN:
		c.connecting(fd)
	case errno == unix.EAGAIN, errno == unix.EADDRINUSE, errno == unix.EADDRNOTAVAIL,
		errno == unix.ECONNREFUSED, errno == unix.ENETUNREACH:
		c.retry(fd)
	case errno == unix.EACCES, errno == unix.EPERM, errno == unix.EAFNOSUPPORT,
		errno == unix.EALREADY, errno == unix.EBADF, errno == unix.EFAULT, errno == unix.ENOTSOCK:
		log().Error("connect failed with a non-retryable error", zapErr(err))
		closeSocket(fd)
	default:
		log().Error("connect failed with an unexpected error", zapErr(err))
		closeSocket(fd)
	}
}

func (c *Connector) connecting(sockFd int) {
	c.state = connectorConnecting
	c.channel = NewChannel(c.loop, sockFd)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetErrorCallback(c.handleError)
	c.channel.EnableWriting()
}

func (c *Connector) removeAndResetChannel() int {
	c.channel.DisableAll()
	c.channel.Remove()
	sockFd := c.channel.Fd()
	c.loop.QueueInLoop(func() { c.channel = nil })
	return sockFd
}

func (c *Connector) handleWrite() {
	log().Debug("connector handling write readiness", zap.Int32("state", int32(c.state)))

	if c.state != connectorConnecting {
		return
	}

	sockFd := c.removeAndResetChannel()
	if err := getSocketError(sockFd); err != 0 {
		log().Warn("connect completed with a socket error", zap.Int("errno", err))
		c.retry(sockFd)
		return
	}
	if isSelfConnect(sockFd) {
		log().Warn("connect resolved to a self-connect, retrying")
		c.retry(sockFd)
		return
	}

	c.state = connectorConnected
	if c.connect {
		if c.newConnFn != nil {
			c.newConnFn(sockFd)
		}
	} else {
		closeSocket(sockFd)
	}
}

func (c *Connector) handleError() {
	log().Error("connector handling error readiness", zap.Int32("state", int32(c.state)))
	if c.state != connectorConnecting {
		return
	}
	sockFd := c.removeAndResetChannel()
	errno := getSocketError(sockFd)
	log().Debug("socket error observed on connect", zap.Int("errno", errno))
	c.retry(sockFd)
}

func (c *Connector) retry(sockFd int) {
	closeSocket(sockFd)
	c.state = connectorDisconnected
	if !c.connect {
		return
	}
	log().Info("retrying connection", zap.String("addr", c.serverAddr.String()), zap.Int("delayMs", c.retryDelayMs))
	delaySeconds := float64(c.retryDelayMs) / 1000.0
	c.loop.RunAfter(delaySeconds, c.startInLoop)
	c.retryDelayMs *= 2
	if c.retryDelayMs > maxRetryDelayMs {
		c.retryDelayMs = maxRetryDelayMs
	}
}
