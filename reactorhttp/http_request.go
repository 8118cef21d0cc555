// Package reactorhttp is an illustrative byte-protocol collaborator built
// directly on the reactor core's Conn/Buffer, rather than on net/http: a
// minimal request-line + header parser framed by CRLF, grounded on
// original_source/muduo-cpp11/net/http/http_request.h.
package reactorhttp

import (
	"strings"

	"github.com/loopcore/reactor/rtime"
)

// Method is an HTTP request method.
type Method int

const (
	MethodInvalid Method = iota
	MethodGet
	MethodPost
	MethodHead
	MethodPut
	MethodDelete
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodHead:
		return "HEAD"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

func parseMethod(s string) Method {
	switch s {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	case "HEAD":
		return MethodHead
	case "PUT":
		return MethodPut
	case "DELETE":
		return MethodDelete
	default:
		return MethodInvalid
	}
}

// Version is an HTTP protocol version.
type Version int

const (
	VersionUnknown Version = iota
	VersionHTTP10
	VersionHTTP11
)

// Request is a parsed HTTP request.
type Request struct {
	Method      Method
	Version     Version
	Path        string
	Query       string
	RemoteAddr  string
	ReceiveTime rtime.Time
	Headers     map[string]string
}

func newRequest(remoteAddr string) *Request {
	return &Request{RemoteAddr: remoteAddr, Headers: make(map[string]string)}
}

// Header returns the value of the named header, case-sensitively, or "" if
// absent.
func (r *Request) Header(field string) string { return r.Headers[field] }

func (r *Request) addHeader(line string) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return
	}
	field := line[:colon]
	value := strings.TrimSpace(line[colon+1:])
	r.Headers[field] = value
}
