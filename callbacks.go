package reactor

import (
	"go.uber.org/zap"

	"github.com/loopcore/reactor/rtime"
)

// ConnectionCallback is invoked once when a Conn becomes connected and again
// when it becomes disconnected; check Conn.Connected() to distinguish.
type ConnectionCallback func(conn *Conn)

// MessageCallback is invoked whenever new bytes are appended to a
// connection's input buffer.
type MessageCallback func(conn *Conn, buf *Buffer, receiveTime rtime.Time)

// WriteCompleteCallback is invoked once a Send's bytes have all been handed
// to the kernel: right after a direct write that took everything, or when
// the output buffer drains to empty.
type WriteCompleteCallback func(conn *Conn)

// HighWaterMarkCallback is invoked each time a connection's output buffer
// grows from below the configured watermark to at or above it.
type HighWaterMarkCallback func(conn *Conn, outputBytes int)

// CloseCallback is the server/client's internal hook for removing a
// connection from its registry; not for application use.
type CloseCallback func(conn *Conn)

func defaultConnectionCallback(conn *Conn) {
	log().Info("connection state changed",
		zap.String("addr", conn.PeerAddress().String()),
		zap.Bool("connected", conn.Connected()),
	)
}

func defaultMessageCallback(conn *Conn, buf *Buffer, receiveTime rtime.Time) {
	buf.RetrieveAll()
}
