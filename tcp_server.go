package reactor

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ServerOption controls whether the acceptor's listening socket sets
// SO_REUSEPORT, letting multiple processes (or multiple base loops) share
// one port.
type ServerOption int

const (
	// NoReusePort binds the listening socket exclusively.
	NoReusePort ServerOption = iota
	// ReusePort sets SO_REUSEPORT on the listening socket.
	ReusePort
)

// Server accepts inbound connections on one address and distributes them
// across an I/O loop pool, grounded on
// original_source/muduo-cpp11/net/tcp_server.cpp.
type Server struct {
	loop       *EventLoop
	hostport   string
	name       string
	acceptor   *Acceptor
	threadPool *EventLoopThreadPool

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	threadInitCallback    ThreadInitFunc

	mu          sync.Mutex
	started     bool
	nextConnID  int
	connections map[string]*Conn
}

// NewServer creates a server that will listen on addr once Start is
// called.
func NewServer(loop *EventLoop, addr InetAddress, name string, opt ServerOption) *Server {
	s := &Server{
		loop:        loop,
		hostport:    addr.String(),
		name:        name,
		acceptor:    NewAcceptor(loop, addr, opt == ReusePort),
		threadPool:  NewEventLoopThreadPool(loop),
		nextConnID:  1,
		connections: make(map[string]*Conn),

		connectionCallback: defaultConnectionCallback,
		messageCallback:    defaultMessageCallback,
	}
	s.acceptor.SetNewConnectionCallback(s.newConnection)
	return s
}

// SetThreadNum configures the size of the I/O loop pool serving accepted
// connections. Must be called before Start.
func (s *Server) SetThreadNum(n int) { s.threadPool.SetThreadNum(n) }

// SetThreadInitCallback installs the hook run on each I/O loop's
// goroutine before it starts looping.
func (s *Server) SetThreadInitCallback(f ThreadInitFunc) { s.threadInitCallback = f }

// SetConnectionCallback installs the connect/disconnect hook applied to
// every accepted connection.
func (s *Server) SetConnectionCallback(f ConnectionCallback) { s.connectionCallback = f }

// SetMessageCallback installs the inbound-data hook applied to every
// accepted connection.
func (s *Server) SetMessageCallback(f MessageCallback) { s.messageCallback = f }

// SetWriteCompleteCallback installs the output-drained hook applied to
// every accepted connection.
func (s *Server) SetWriteCompleteCallback(f WriteCompleteCallback) { s.writeCompleteCallback = f }

// Start spawns the I/O loop pool and begins listening. Idempotent: later
// calls are no-ops.
func (s *Server) Start() {
	s.mu.Lock()
	alreadyStarted := s.started
	s.started = true
	s.mu.Unlock()
	if alreadyStarted {
		return
	}

	s.threadPool.Start(s.threadInitCallback)
	if s.acceptor.Listening() {
		panic("reactor: Server.Start called after the acceptor is already listening")
	}
	s.loop.RunInLoop(s.acceptor.Listen)
}

// ActiveConnectionCount reports the number of currently registered
// connections.
func (s *Server) ActiveConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

func (s *Server) newConnection(sockFd int, peerAddr InetAddress) {
	s.loop.AssertInLoopThread()
	ioLoop := s.threadPool.GetNextLoop()

	s.mu.Lock()
	connName := fmt.Sprintf("%s:%s#%d", s.name, s.hostport, s.nextConnID)
	s.nextConnID++
	s.mu.Unlock()

	log().Info("accepted connection",
		zap.String("server", s.name),
		zap.String("conn", connName),
		zap.String("peer", peerAddr.String()),
	)

	localAddr := getLocalAddr(sockFd)
	conn := NewConn(ioLoop, connName, sockFd, localAddr, peerAddr)

	s.mu.Lock()
	s.connections[connName] = conn
	s.mu.Unlock()

	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.setCloseCallback(s.removeConnection)

	ioLoop.RunInLoop(conn.connectEstablished)
}

func (s *Server) removeConnection(conn *Conn) {
	s.loop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

// Close tears down every still-registered connection and releases the
// acceptor. Must run on the server's own loop. The returned error is the
// acceptor's aggregated close error; connection teardown failures are
// logged, not returned.
func (s *Server) Close() error {
	s.loop.AssertInLoopThread()

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.connections = make(map[string]*Conn)
	s.mu.Unlock()

	for _, c := range conns {
		ioLoop := c.Loop()
		ioLoop.RunInLoop(c.connectDestroyed)
	}
	return s.acceptor.Close()
}

func (s *Server) removeConnectionInLoop(conn *Conn) {
	s.loop.AssertInLoopThread()
	log().Info("removing connection", zap.String("server", s.name), zap.String("conn", conn.Name()))

	s.mu.Lock()
	delete(s.connections, conn.Name())
	s.mu.Unlock()

	ioLoop := conn.Loop()
	ioLoop.QueueInLoop(conn.connectDestroyed)
}
