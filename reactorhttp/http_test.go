package reactorhttp

import (
	"strings"
	"testing"

	"github.com/loopcore/reactor"
)

func TestParseRequestSimpleGet(t *testing.T) {
	buf := reactor.NewBuffer(128)
	buf.AppendString("GET /foo?bar=baz HTTP/1.1\r\nHost: example.com\r\nConnection: Keep-Alive\r\n\r\n")

	ctx := NewContext("1.2.3.4:5678")
	if ok := ctx.ParseRequest(buf); !ok {
		t.Fatal("ParseRequest returned false for a well-formed request")
	}
	if !ctx.GotAll() {
		t.Fatal("GotAll() = false after a complete request")
	}

	req := ctx.Request()
	if req.Method != MethodGet {
		t.Fatalf("Method = %v, want GET", req.Method)
	}
	if req.Path != "/foo" {
		t.Fatalf("Path = %q, want /foo", req.Path)
	}
	if req.Query != "bar=baz" {
		t.Fatalf("Query = %q, want bar=baz", req.Query)
	}
	if req.Version != VersionHTTP11 {
		t.Fatalf("Version = %v, want HTTP/1.1", req.Version)
	}
	if req.Header("Host") != "example.com" {
		t.Fatalf("Host header = %q, want example.com", req.Header("Host"))
	}
	if req.Header("Connection") != "Keep-Alive" {
		t.Fatalf("Connection header = %q, want Keep-Alive", req.Header("Connection"))
	}
}

func TestParseRequestStopsAtIncompleteLine(t *testing.T) {
	buf := reactor.NewBuffer(128)
	buf.AppendString("GET / HTTP/1.1\r\nHost: exam")

	ctx := NewContext("1.2.3.4:5678")
	if ok := ctx.ParseRequest(buf); !ok {
		t.Fatal("ParseRequest returned false while only waiting on more data")
	}
	if ctx.GotAll() {
		t.Fatal("GotAll() = true before headers finished arriving")
	}
	if ctx.ExpectRequestLine() {
		t.Fatal("parser regressed to expecting the request line again")
	}

	buf.AppendString("ple.com\r\n\r\n")
	if ok := ctx.ParseRequest(buf); !ok {
		t.Fatal("ParseRequest returned false once the rest of the request arrived")
	}
	if !ctx.GotAll() {
		t.Fatal("GotAll() = false after the remaining bytes arrived")
	}
	if ctx.Request().Header("Host") != "example.com" {
		t.Fatalf("Host header = %q, want example.com", ctx.Request().Header("Host"))
	}
}

func TestParseRequestRejectsMalformedRequestLine(t *testing.T) {
	buf := reactor.NewBuffer(128)
	buf.AppendString("GARBAGE\r\n\r\n")

	ctx := NewContext("1.2.3.4:5678")
	if ok := ctx.ParseRequest(buf); ok {
		t.Fatal("ParseRequest accepted a malformed request line")
	}
}

func TestContextResetPreservesRemoteAddrForKeepAlive(t *testing.T) {
	ctx := NewContext("9.9.9.9:1")
	buf := reactor.NewBuffer(64)
	buf.AppendString("GET / HTTP/1.1\r\n\r\n")
	ctx.ParseRequest(buf)
	ctx.Reset()

	if !ctx.ExpectRequestLine() {
		t.Fatal("Reset did not return the parser to stateExpectRequestLine")
	}
	if ctx.Request().RemoteAddr != "9.9.9.9:1" {
		t.Fatalf("RemoteAddr lost across Reset: %q", ctx.Request().RemoteAddr)
	}
}

func TestResponseAppendToBufferKeepalive(t *testing.T) {
	resp := NewResponse(200, "OK", true)
	resp.SetHeader("X-Test", "1")
	resp.SetBody([]byte("hello"))

	buf := reactor.NewBuffer(0)
	resp.AppendToBuffer(buf)
	out := buf.RetrieveAllAsString()

	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line wrong: %q", out)
	}
	if !strings.Contains(out, "Content-Length: 5\r\n") {
		t.Fatalf("missing Content-Length: %q", out)
	}
	if !strings.Contains(out, "Connection: Keep-Alive\r\n") {
		t.Fatalf("missing keepalive header: %q", out)
	}
	if !strings.Contains(out, "X-Test: 1\r\n") {
		t.Fatalf("missing custom header: %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\nhello") {
		t.Fatalf("body not appended after blank line: %q", out)
	}
}

func TestResponseAppendToBufferClose(t *testing.T) {
	resp := NewResponse(404, "Not Found", false)

	buf := reactor.NewBuffer(0)
	resp.AppendToBuffer(buf)
	out := buf.RetrieveAllAsString()

	if !strings.Contains(out, "Connection: close\r\n") {
		t.Fatalf("missing close header: %q", out)
	}
	if strings.Contains(out, "Content-Length") {
		t.Fatalf("Content-Length should not be sent on a close response: %q", out)
	}
}
