package reactorhttp

import (
	"fmt"

	"github.com/loopcore/reactor"
)

// Response is serialized directly into a connection's output buffer,
// grounded on original_source/muduo-cpp11/net/http/http_response.cpp.
type Response struct {
	StatusCode int
	StatusText string
	Keepalive  bool
	Headers    map[string]string
	Body       []byte
}

// NewResponse creates a response with the given status and keepalive
// policy.
func NewResponse(statusCode int, statusText string, keepalive bool) *Response {
	return &Response{
		StatusCode: statusCode,
		StatusText: statusText,
		Keepalive:  keepalive,
		Headers:    make(map[string]string),
	}
}

// SetHeader sets a response header.
func (r *Response) SetHeader(field, value string) { r.Headers[field] = value }

// SetBody sets the response body and returns r for chaining.
func (r *Response) SetBody(body []byte) *Response {
	r.Body = body
	return r
}

// AppendToBuffer serializes the status line, headers, and body onto buf.
func (r *Response) AppendToBuffer(buf *reactor.Buffer) {
	buf.AppendString(fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.StatusCode, r.StatusText))

	if !r.Keepalive {
		buf.AppendString("Connection: close\r\n")
	} else {
		buf.AppendString(fmt.Sprintf("Content-Length: %d\r\n", len(r.Body)))
		buf.AppendString("Connection: Keep-Alive\r\n")
	}

	for field, value := range r.Headers {
		buf.AppendString(field)
		buf.AppendString(": ")
		buf.AppendString(value)
		buf.AppendString("\r\n")
	}

	buf.AppendString("\r\n")
	buf.Append(r.Body)
}
