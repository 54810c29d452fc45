package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/bsrvcore/internal/httpwire"
)

const sessionCookieName = "sessionId"

// Task is a one-shot object representing a single request-response cycle.
// It owns the parsed request, the matched RouteResult, the response being
// built, and the pending Set-Cookie list, and carries a back-reference to
// the Connection that produced it.
type Task struct {
	req    *httpwire.Request
	resp   *httpwire.Response
	result RouteResult
	conn   *Connection

	cookies       map[string]string
	cookiesParsed bool

	sessionID    string
	sessionIDSet bool

	pendingSetCookies []SetCookie

	keepAlive bool
	manual    bool

	local *Context
}

// NewTask constructs a Task that owns req and result on behalf of conn.
func NewTask(conn *Connection, req *httpwire.Request, result RouteResult) *Task {
	return &Task{
		conn:      conn,
		req:       req,
		resp:      httpwire.GetResponse(),
		result:    result,
		keepAlive: req.KeepAlive,
	}
}

// Request returns the parsed request this task is serving.
func (t *Task) Request() *httpwire.Request { return t.req }

// Response returns the response builder this task writes into.
func (t *Task) Response() *httpwire.Response { return t.resp }

// Location returns the matched route's location string.
func (t *Task) Location() string { return t.result.Location }

// Params returns the captured path parameters in traversal order.
func (t *Task) Params() []string { return t.result.Params }

// Limits returns the resolved per-route limits for this request.
func (t *Task) Limits() Limits { return t.result.Limits }

// ServerContext returns the server-wide Context.
func (t *Task) ServerContext() *Context {
	return t.conn.server.Context()
}

// Local returns a Context scoped to this single request, created lazily.
// Aspects use it to pass state from Pre to Post without a shared variable
// racing across concurrently dispatched tasks.
func (t *Task) Local() *Context {
	if t.local == nil {
		t.local = NewContext()
	}
	return t.local
}

// Session returns this task's session Context, creating one if the
// resolved session id has none yet.
func (t *Task) Session() *Context {
	return t.conn.server.Sessions().GetSession(t.SessionID())
}

// SetSessionExpiry overrides the session's timeout via SetSessionTimeout.
func (t *Task) SetSessionExpiry(d time.Duration) {
	t.conn.server.Sessions().SetSessionTimeout(t.SessionID(), d)
}

// Cookie returns the value of the named request cookie, parsing the
// Cookie header lazily on first access.
func (t *Task) Cookie(name string) (string, bool) {
	t.ensureCookiesParsed()
	v, ok := t.cookies[name]
	return v, ok
}

func (t *Task) ensureCookiesParsed() {
	if t.cookiesParsed {
		return
	}
	t.cookies = ParseCookies(t.req.Header.Get(httpwire.HeaderCookie))
	t.cookiesParsed = true
}

// SessionID resolves (and, on first call, mints) this task's session id.
// The id is read case-insensitively from a "sessionid" cookie; if absent, a
// fresh UUIDv4 is minted and a Set-Cookie is queued to persist it.
func (t *Task) SessionID() string {
	if t.sessionIDSet {
		return t.sessionID
	}
	t.ensureCookiesParsed()

	for name, value := range t.cookies {
		if strings.EqualFold(name, "sessionid") {
			t.sessionID = value
			t.sessionIDSet = true
			return t.sessionID
		}
	}

	id := uuid.New().String()
	t.sessionID = id
	t.sessionIDSet = true
	t.QueueSetCookie(SetCookie{Name: sessionCookieName, Value: id, Path: "/"})
	return id
}

// SetBody replaces the response body.
func (t *Task) SetBody(b []byte) { t.resp.SetBody(b) }

// AppendBody appends to the response body.
func (t *Task) AppendBody(b []byte) { t.resp.AppendBody(b) }

// SetHeader sets a response header, replacing any existing value.
func (t *Task) SetHeader(name, value string) { t.resp.Header.Set(name, value) }

// SetStatus sets the response status code.
func (t *Task) SetStatus(code int) { t.resp.StatusCode = code }

// QueueSetCookie appends c to the pending Set-Cookie list, flushed into the
// response headers when the task finishes (unless manual mode is set).
func (t *Task) QueueSetCookie(c SetCookie) {
	t.pendingSetCookies = append(t.pendingSetCookies, c)
}

// SetKeepAlive sets whether the connection persists after this response.
// Setting it to true has no effect when the peer did not request
// persistence.
func (t *Task) SetKeepAlive(v bool) { t.keepAlive = v }

// KeepAlive reports the task's current keep-alive intent.
func (t *Task) KeepAlive() bool { return t.keepAlive }

// SetManualConnectionManagement disables the automatic finalize step: the
// application must explicitly recycle or close the connection once
// streaming completes.
func (t *Task) SetManualConnectionManagement(v bool) { t.manual = v }

// ManualConnectionManagement reports whether manual mode is set.
func (t *Task) ManualConnectionManagement() bool { return t.manual }

// WriteHeader enqueues a header-only chunk to the connection's streamed
// write queue.
func (t *Task) WriteHeader() {
	t.flushSetCookies()
	t.resp.HeaderSent = true
	t.conn.enqueueHeader(t.resp)
}

// WriteBody enqueues a body chunk to the connection's streamed write queue.
func (t *Task) WriteBody(chunk []byte) {
	t.conn.enqueueBody(chunk)
}

// Post runs fn on the server's executor pool.
func (t *Task) Post(fn func()) {
	t.conn.server.pool.Post(fn)
}

// Schedule runs fn on the server's executor pool after d elapses.
func (t *Task) Schedule(d time.Duration, fn func()) {
	t.conn.server.pool.Schedule(d, fn)
}

// PostAwait runs fn on the executor pool and returns a channel that yields
// fn's result once it has run, the future-shaped counterpart to Post.
func (t *Task) PostAwait(fn func() any) <-chan any {
	ch := make(chan any, 1)
	t.conn.server.pool.Post(func() { ch <- fn() })
	return ch
}

// ScheduleAwait runs fn on the executor pool after d elapses and returns a
// channel that yields fn's result.
func (t *Task) ScheduleAwait(d time.Duration, fn func() any) <-chan any {
	ch := make(chan any, 1)
	t.conn.server.pool.Schedule(d, func() { ch <- fn() })
	return ch
}

// Connection returns the connection serving this task, for manual-mode
// handlers that drive streamed writes and must eventually call Recycle or
// Close themselves.
func (t *Task) Connection() *Connection { return t.conn }

func (t *Task) flushSetCookies() {
	for _, c := range t.pendingSetCookies {
		if v := c.Build(); v != "" {
			t.resp.Header.Add(httpwire.HeaderSetCookie, v)
		}
	}
	t.pendingSetCookies = t.pendingSetCookies[:0]
}

// Start runs the pipeline: ascending pre-aspects, the handler, then
// descending post-aspects. Each step posts the next onto the executor pool
// rather than running it inline, so a blocking step never stalls the
// connection's I/O and no two steps of the same task ever overlap. On
// completion, unless manual mode was set, the response is flushed and
// handed to the Connection with the negotiated keep-alive flag.
func (t *Task) Start() {
	t.conn.server.pool.Post(func() { t.stepPre(0) })
}

func (t *Task) stepPre(i int) {
	aspects := t.result.Aspects
	if i >= len(aspects) {
		t.conn.server.pool.Post(t.stepHandler)
		return
	}
	if pre := aspects[i].Pre; pre != nil {
		if err := pre(t); err != nil {
			t.conn.server.logError("aspect pre", err)
			// The failing aspect's own post is skipped; unwind only the
			// aspects whose pre completed.
			t.conn.server.pool.Post(func() { t.stepPost(i - 1) })
			return
		}
	}
	t.conn.server.pool.Post(func() { t.stepPre(i + 1) })
}

func (t *Task) stepHandler() {
	if t.result.Handler != nil {
		t.invokeHandler()
	}
	t.conn.server.pool.Post(func() { t.stepPost(len(t.result.Aspects) - 1) })
}

func (t *Task) stepPost(i int) {
	if i < 0 {
		t.finish()
		return
	}
	if post := t.result.Aspects[i].Post; post != nil {
		if err := post(t); err != nil {
			t.conn.server.logError("aspect post", err)
		}
	}
	t.conn.server.pool.Post(func() { t.stepPost(i - 1) })
}

// invokeHandler runs the matched handler with panic recovery, so a single
// misbehaving handler can neither crash the process nor leave the strand
// wedged. The headers and body assembled before the panic are still
// written with the status set to 500, unless manual mode is set. Aspect Pre
// and Post calls are not wrapped in a recover.
func (t *Task) invokeHandler() {
	defer func() {
		if r := recover(); r != nil {
			t.conn.server.logError("handler panic", panicError{r})
			t.SetStatus(500)
		}
	}()
	if err := t.result.Handler(t); err != nil {
		t.conn.server.logError("handler", err)
	}
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("%v", p.v) }

func (t *Task) finish() {
	if t.manual {
		return
	}
	t.flushSetCookies()
	// Keep-alive holds only if both sides want it: the peer must have
	// requested persistence and the handler must not have turned it off.
	t.conn.finishTask(t.req, t.resp, t.keepAlive && t.req.KeepAlive)
}
