package reactorhttp

import (
	"strings"

	"github.com/loopcore/reactor"
)

type parseState int

const (
	stateExpectRequestLine parseState = iota
	stateExpectHeaders
	stateGotAll
)

// Context is the incremental request parser attached to one connection: it
// consumes complete lines from a Buffer as they become available and
// accumulates them into a Request, grounded on
// original_source/muduo-cpp11/net/http/http_context.h.
type Context struct {
	state   parseState
	request *Request
}

// NewContext creates a parser for a connection from remoteAddr.
func NewContext(remoteAddr string) *Context {
	return &Context{
		state:   stateExpectRequestLine,
		request: newRequest(remoteAddr),
	}
}

// ExpectRequestLine reports whether the next parsed line should be the
// request line.
func (c *Context) ExpectRequestLine() bool { return c.state == stateExpectRequestLine }

// GotAll reports whether a complete request has been parsed.
func (c *Context) GotAll() bool { return c.state == stateGotAll }

// Request returns the request parsed so far.
func (c *Context) Request() *Request { return c.request }

// Reset clears the parser for the next request on the same connection
// (HTTP/1.1 keep-alive).
func (c *Context) Reset() {
	remoteAddr := c.request.RemoteAddr
	c.state = stateExpectRequestLine
	c.request = newRequest(remoteAddr)
}

// ParseRequest consumes every complete CRLF-terminated line currently
// available in buf, advancing the parser's state machine. It stops at the
// first incomplete line, leaving it in buf for the next readiness event.
// Returns false if a malformed request line is encountered; a header line
// without a colon is skipped.
func (c *Context) ParseRequest(buf *reactor.Buffer) bool {
	for {
		switch c.state {
		case stateExpectRequestLine:
			idx := buf.FindCRLF()
			if idx < 0 {
				return true
			}
			line := string(buf.Peek()[:idx])
			buf.Retrieve(idx + 2)
			if !c.parseRequestLine(line) {
				return false
			}
			c.state = stateExpectHeaders

		case stateExpectHeaders:
			idx := buf.FindCRLF()
			if idx < 0 {
				return true
			}
			line := string(buf.Peek()[:idx])
			buf.Retrieve(idx + 2)
			if line == "" {
				c.state = stateGotAll
				return true
			}
			c.request.addHeader(line)

		case stateGotAll:
			return true
		}
	}
}

func (c *Context) parseRequestLine(line string) bool {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return false
	}
	method := parseMethod(parts[0])
	if method == MethodInvalid {
		return false
	}
	c.request.Method = method

	target := parts[1]
	if q := strings.IndexByte(target, '?'); q >= 0 {
		c.request.Path = target[:q]
		c.request.Query = target[q+1:]
	} else {
		c.request.Path = target
	}

	switch parts[2] {
	case "HTTP/1.1":
		c.request.Version = VersionHTTP11
	case "HTTP/1.0":
		c.request.Version = VersionHTTP10
	default:
		c.request.Version = VersionUnknown
	}
	return true
}
