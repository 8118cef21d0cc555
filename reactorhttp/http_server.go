package reactorhttp

import (
	"go.uber.org/zap"

	"github.com/loopcore/reactor"
	"github.com/loopcore/reactor/rtime"
)

// Handler produces a response for a parsed request. done must be called
// exactly once, synchronously or later, to complete the request.
type Handler func(req *Request, done func(*Response))

func notFoundHandler(_ *Request, done func(*Response)) {
	resp := NewResponse(404, "Not Found", false)
	done(resp)
}

// Server dispatches parsed HTTP requests arriving on a *reactor.Server's
// connections to a Handler and writes the resulting Response back,
// grounded on original_source/muduo-cpp11/net/http/http_server.cpp.
type Server struct {
	server  *reactor.Server
	handler Handler
}

// NewServer wraps server, installing the connection and message callbacks
// needed to drive request parsing. server.Start must be called separately.
func NewServer(server *reactor.Server) *Server {
	s := &Server{server: server, handler: notFoundHandler}
	server.SetConnectionCallback(s.onConnection)
	server.SetMessageCallback(s.onMessage)
	return s
}

// SetHandler installs the request handler, replacing the default 404
// responder.
func (s *Server) SetHandler(h Handler) { s.handler = h }

func (s *Server) onConnection(conn *reactor.Conn) {
	if conn.Connected() {
		conn.SetContext(NewContext(conn.PeerAddress().String()))
	}
}

func (s *Server) onMessage(conn *reactor.Conn, buf *reactor.Buffer, receiveTime rtime.Time) {
	ctx, ok := conn.Context().(*Context)
	if !ok {
		log().Error("connection missing http context", zap.String("conn", conn.Name()))
		conn.ForceClose()
		return
	}

	if !ctx.ParseRequest(buf) {
		conn.SendString("HTTP/1.1 400 Bad Request\r\n\r\n")
		conn.Shutdown()
		return
	}

	if ctx.GotAll() {
		req := ctx.Request()
		req.ReceiveTime = receiveTime
		s.dispatch(conn, req)
		ctx.Reset()
	}
}

func (s *Server) dispatch(conn *reactor.Conn, req *Request) {
	connection := req.Header("Connection")
	close := connection == "close" ||
		(req.Version == VersionHTTP10 && connection != "Keep-Alive")

	s.handler(req, func(resp *Response) {
		resp.Keepalive = !close
		s.requestDone(conn, resp)
	})
}

func (s *Server) requestDone(conn *reactor.Conn, resp *Response) {
	buf := reactor.NewBuffer(0)
	resp.AppendToBuffer(buf)
	conn.SendBuffer(buf)
	if !resp.Keepalive {
		conn.Shutdown()
	}
}
