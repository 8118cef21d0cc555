package reactor

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Client drives a single outbound connection, reconnecting automatically
// when Retry is enabled, grounded on
// original_source/muduo-cpp11/net/tcp_client.cpp.
type Client struct {
	loop      *EventLoop
	connector *Connector
	name      string

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback

	retry   bool
	connect bool

	mu         sync.Mutex
	connection *Conn
	nextConnID int
}

// NewClient creates a client targeting serverAddr. Connect must be called
// to begin connecting.
func NewClient(loop *EventLoop, serverAddr InetAddress, name string) *Client {
	c := &Client{
		loop:       loop,
		connector:  NewConnector(loop, serverAddr),
		name:       name,
		connect:    true,
		nextConnID: 1,

		connectionCallback: defaultConnectionCallback,
		messageCallback:    defaultMessageCallback,
	}
	c.connector.SetNewConnectionCallback(c.newConnection)
	return c
}

// SetConnectionCallback installs the connect/disconnect hook.
func (c *Client) SetConnectionCallback(f ConnectionCallback) { c.connectionCallback = f }

// SetMessageCallback installs the inbound-data hook.
func (c *Client) SetMessageCallback(f MessageCallback) { c.messageCallback = f }

// SetWriteCompleteCallback installs the output-drained hook.
func (c *Client) SetWriteCompleteCallback(f WriteCompleteCallback) { c.writeCompleteCallback = f }

// EnableRetry makes the client reconnect automatically after an
// established connection closes. Failed connect attempts are retried by the
// connector whether or not retry is enabled.
func (c *Client) EnableRetry() { c.retry = true }

// Connect begins connecting (or reconnecting) to the target server.
func (c *Client) Connect() {
	c.connect = true
	c.connector.Start()
}

// Disconnect shuts down the current connection, if any, without affecting
// a pending connect attempt's retry policy.
func (c *Client) Disconnect() {
	c.connect = false
	c.mu.Lock()
	conn := c.connection
	c.mu.Unlock()
	if conn != nil {
		conn.Shutdown()
	}
}

// Stop cancels a pending connect attempt.
func (c *Client) Stop() {
	c.connect = false
	c.connector.Stop()
}

// Connection returns the current connection, or nil if not connected.
func (c *Client) Connection() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection
}

func (c *Client) newConnection(sockFd int) {
	c.loop.AssertInLoopThread()
	peerAddr := getPeerAddr(sockFd)
	localAddr := getLocalAddr(sockFd)

	c.mu.Lock()
	connName := fmt.Sprintf("%s:%s#%d", c.name, peerAddr.String(), c.nextConnID)
	c.nextConnID++
	c.mu.Unlock()

	log().Info("client connected", zap.String("client", c.name), zap.String("conn", connName))

	conn := NewConn(c.loop, connName, sockFd, localAddr, peerAddr)
	conn.SetConnectionCallback(c.connectionCallback)
	conn.SetMessageCallback(c.messageCallback)
	conn.SetWriteCompleteCallback(c.writeCompleteCallback)
	conn.setCloseCallback(c.removeConnection)

	c.mu.Lock()
	c.connection = conn
	c.mu.Unlock()

	conn.connectEstablished()
}

func (c *Client) removeConnection(conn *Conn) {
	c.loop.AssertInLoopThread()

	c.mu.Lock()
	c.connection = nil
	c.mu.Unlock()

	c.loop.QueueInLoop(conn.connectDestroyed)

	if c.retry && c.connect {
		log().Info("reconnecting", zap.String("client", c.name))
		c.connector.Restart()
	}
}
