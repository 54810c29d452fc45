package core

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/bsrvcore/internal/httpwire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HeaderReadExpiry = 2 * time.Second
	cfg.KeepAliveTimeout = 2 * time.Second
	cfg.SessionCleanerEnabled = false
	s := NewServer(cfg)
	s.pool.Start(4)
	t.Cleanup(s.pool.Stop)
	return s
}

func pipeConnection(t *testing.T, s *Server) (client net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	conn := NewConnection(server, s, false)
	conn.Run()
	t.Cleanup(func() { client.Close() })
	return client
}

func readResponse(t *testing.T, r *bufio.Reader) (status string, headers map[string]string, body string) {
	t.Helper()
	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	status = strings.TrimSpace(statusLine)

	headers = make(map[string]string)
	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header line: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, _ := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		headers[name] = value
		if strings.EqualFold(name, "Content-Length") {
			for _, c := range value {
				contentLength = contentLength*10 + int(c-'0')
			}
		}
	}
	buf := make([]byte, contentLength)
	if contentLength > 0 {
		if _, err := readFullTest(r, buf); err != nil {
			t.Fatalf("read body: %v", err)
		}
	}
	return status, headers, string(buf)
}

func readFullTest(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func TestConnectionBasicGet(t *testing.T) {
	s := newTestServer(t)
	s.Route(httpwire.MethodGet, "/ping", func(task *Task) error {
		task.SetBody([]byte("pong"))
		return nil
	})
	client := pipeConnection(t, s)

	client.Write([]byte("GET /ping HTTP/1.1\r\nHost: x\r\n\r\n"))
	status, _, body := readResponse(t, bufio.NewReader(client))
	if status != "HTTP/1.1 200 OK" {
		t.Fatalf("status = %q", status)
	}
	if body != "pong" {
		t.Fatalf("body = %q, want pong", body)
	}
}

func TestConnectionEchoPost(t *testing.T) {
	s := newTestServer(t)
	s.Route(httpwire.MethodPost, "/echo", func(task *Task) error {
		task.SetBody(task.Request().Body)
		return nil
	})
	client := pipeConnection(t, s)

	client.Write([]byte("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"))
	_, _, body := readResponse(t, bufio.NewReader(client))
	if body != "hello" {
		t.Fatalf("body = %q, want hello", body)
	}
}

func TestConnectionSessionCookieMint(t *testing.T) {
	s := newTestServer(t)
	var seenID string
	s.Route(httpwire.MethodGet, "/session", func(task *Task) error {
		seenID = task.SessionID()
		task.SetBody([]byte(seenID))
		return nil
	})
	client := pipeConnection(t, s)

	client.Write([]byte("GET /session HTTP/1.1\r\nHost: x\r\n\r\n"))
	_, headers, body := readResponse(t, bufio.NewReader(client))
	setCookie := headers["Set-Cookie"]
	if !strings.HasPrefix(setCookie, "sessionId=") {
		t.Fatalf("Set-Cookie = %q", setCookie)
	}
	if !strings.Contains(setCookie, body) {
		t.Fatalf("Set-Cookie %q does not contain session id %q", setCookie, body)
	}
}

func TestConnectionHandlerPanicRecovered(t *testing.T) {
	s := newTestServer(t)
	s.Route(httpwire.MethodGet, "/boom", func(task *Task) error {
		task.SetHeader("X-Partial", "yes")
		panic("handler exploded")
	})
	client := pipeConnection(t, s)

	client.Write([]byte("GET /boom HTTP/1.1\r\nHost: x\r\n\r\n"))
	status, headers, _ := readResponse(t, bufio.NewReader(client))
	if status != "HTTP/1.1 500 Internal Server Error" {
		t.Fatalf("status = %q, want 500", status)
	}
	if headers["X-Partial"] != "yes" {
		t.Fatalf("expected headers set before the panic to survive, got %v", headers)
	}
}

func TestConnectionKeepAliveRecycles(t *testing.T) {
	s := newTestServer(t)
	n := 0
	s.Route(httpwire.MethodGet, "/count", func(task *Task) error {
		n++
		task.SetBody([]byte("ok"))
		return nil
	})
	client := pipeConnection(t, s)
	r := bufio.NewReader(client)

	client.Write([]byte("GET /count HTTP/1.1\r\nHost: x\r\n\r\n"))
	status, headers, _ := readResponse(t, r)
	if status != "HTTP/1.1 200 OK" {
		t.Fatalf("status = %q", status)
	}
	if headers["Connection"] != "keep-alive" {
		t.Fatalf("Connection = %q, want keep-alive", headers["Connection"])
	}

	client.Write([]byte("GET /count HTTP/1.1\r\nHost: x\r\n\r\n"))
	_, _, _ = readResponse(t, r)
	if n != 2 {
		t.Fatalf("n = %d, want 2 requests served on one connection", n)
	}
}

func TestConnectionHandlerKeepAliveOffCloses(t *testing.T) {
	s := newTestServer(t)
	s.Route(httpwire.MethodGet, "/bye", func(task *Task) error {
		task.SetKeepAlive(false)
		task.SetBody([]byte("bye"))
		return nil
	})
	client := pipeConnection(t, s)
	r := bufio.NewReader(client)

	client.Write([]byte("GET /bye HTTP/1.1\r\nHost: x\r\n\r\n"))
	_, headers, body := readResponse(t, r)
	if headers["Connection"] != "close" {
		t.Fatalf("Connection = %q, want close", headers["Connection"])
	}
	if body != "bye" {
		t.Fatalf("body = %q, want bye", body)
	}
	if _, err := r.ReadByte(); err == nil {
		t.Fatal("connection should be closed after a Connection: close response")
	}
}

func TestConnectionBodyLimitCloses(t *testing.T) {
	s := newTestServer(t)
	s.RouteWithLimits(httpwire.MethodPost, "/small", func(task *Task) error {
		task.SetBody([]byte("never reached"))
		return nil
	}, Limits{MaxBody: 4})
	client := pipeConnection(t, s)

	go client.Write([]byte("POST /small HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\n0123456789"))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := client.Read(buf); err == nil {
		t.Fatal("connection should close without a response when the body exceeds the route limit")
	}
}

func TestConnectionAspectPreFailureSkipsHandler(t *testing.T) {
	s := newTestServer(t)
	var handlerHit bool
	s.GlobalAspect(Aspect{
		Pre: func(task *Task) error {
			task.SetStatus(403)
			return errTestRefused
		},
	})
	s.Route(httpwire.MethodGet, "/guarded", func(task *Task) error {
		handlerHit = true
		return nil
	})
	client := pipeConnection(t, s)

	client.Write([]byte("GET /guarded HTTP/1.1\r\nHost: x\r\n\r\n"))
	status, _, _ := readResponse(t, bufio.NewReader(client))
	if status != "HTTP/1.1 403 Forbidden" {
		t.Fatalf("status = %q, want the response assembled before the failing pre-aspect", status)
	}
	if handlerHit {
		t.Fatal("handler must not run when a pre-aspect fails")
	}
}

var errTestRefused = errors.New("refused")

func TestConnectionManualStreamedWrites(t *testing.T) {
	s := newTestServer(t)
	s.Route(httpwire.MethodGet, "/stream", func(task *Task) error {
		task.SetManualConnectionManagement(true)
		task.SetStatus(200)
		task.SetHeader(httpwire.HeaderContentType, "text/event-stream")
		task.WriteHeader()
		task.WriteBody([]byte("data: one\n\n"))
		task.WriteBody([]byte("data: two\n\n"))
		task.Connection().Close()
		return nil
	})
	client := pipeConnection(t, s)

	client.Write([]byte("GET /stream HTTP/1.1\r\nHost: x\r\n\r\n"))
	var out strings.Builder
	buf := make([]byte, 256)
	for {
		n, err := client.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			break
		}
	}
	got := out.String()
	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("stream = %q, want a 200 status line first", got)
	}
	if !strings.Contains(got, "text/event-stream") {
		t.Fatalf("stream = %q, want the streamed header chunk", got)
	}
	one := strings.Index(got, "data: one")
	two := strings.Index(got, "data: two")
	if one < 0 || two < 0 || two < one {
		t.Fatalf("stream = %q, want both body chunks in FIFO order", got)
	}
}

func TestConnectionUnmatchedRouteGetsJSONFallback(t *testing.T) {
	s := newTestServer(t)
	client := pipeConnection(t, s)

	client.Write([]byte("GET /nowhere HTTP/1.1\r\nHost: x\r\n\r\n"))
	status, headers, body := readResponse(t, bufio.NewReader(client))
	if status != "HTTP/1.1 404 Not Found" {
		t.Fatalf("status = %q, want 404", status)
	}
	if headers["Connection"] != "close" {
		t.Fatalf("Connection = %q, want close on the fallback path", headers["Connection"])
	}
	if !strings.Contains(body, "Service is not available currently") {
		t.Fatalf("body = %q, want the fixed fallback message", body)
	}
}

func TestConnectionAspectOrderEndToEnd(t *testing.T) {
	s := newTestServer(t)
	mark := func(pre, post string) Aspect {
		return Aspect{
			Pre:  func(task *Task) error { task.AppendBody([]byte(pre)); return nil },
			Post: func(task *Task) error { task.AppendBody([]byte(post)); return nil },
		}
	}
	s.GlobalAspect(mark("preG|", "postG|"))
	s.MethodAspect(httpwire.MethodGet, mark("preM|", "postM|"))
	s.Route(httpwire.MethodGet, "/order", func(task *Task) error {
		task.AppendBody([]byte("handler|"))
		return nil
	}, mark("preR|", "postR|"))
	client := pipeConnection(t, s)

	client.Write([]byte("GET /order HTTP/1.1\r\nHost: x\r\n\r\n"))
	_, _, body := readResponse(t, bufio.NewReader(client))
	want := "preG|preM|preR|handler|postR|postM|postG|"
	if body != want {
		t.Fatalf("body = %q, want %q", body, want)
	}
}
