package core

import (
	"bufio"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/yourusername/bsrvcore/internal/httpwire"
)

type connState int32

const (
	stateIdle connState = iota
	stateReadingHeader
	stateRouting
	stateReadingBody
	stateDispatching
	stateWriting
	stateRecycling
	stateClosed
)

type writeItem struct {
	header *httpwire.Response // non-nil for a header-only chunk
	body   []byte             // set for a body chunk
}

// Connection is an HTTP/1.1 stream-bound state machine. Header read,
// routing, body read, dispatch, write, and recycle-or-close all run
// strictly sequentially on the connection's strand, a single-goroutine
// command loop that serializes every connection-local mutation.
//
// Phase timeouts are enforced through the net.Conn deadline mechanism: the
// deadline is re-armed at each phase boundary (header read, body read,
// write, idle wait), so an expired phase surfaces as an I/O error on the
// blocked read or write and takes the normal DoClose path.
type Connection struct {
	netConn net.Conn
	server  *Server
	isTLS   bool

	strand chan func()

	br     *bufio.Reader
	bw     *bufio.Writer
	parser *httpwire.Parser

	state  atomic.Int32
	closed atomic.Bool

	// Streamed-write queue. Mutated only on the strand; isWriting guards
	// against issuing two concurrent async writes, recyclePending defers a
	// requested recycle until the queue has drained.
	writeQueue     []writeItem
	isWriting      bool
	recyclePending bool
	closePending   bool

	// writeExpiry is the in-flight request's resolved write expiry,
	// captured at dispatch and applied as a write deadline to both the
	// automatic and streamed write paths.
	writeExpiry time.Duration
}

// NewConnection wraps netConn for processing on behalf of server.
func NewConnection(netConn net.Conn, server *Server, isTLS bool) *Connection {
	c := &Connection{
		netConn: netConn,
		server:  server,
		isTLS:   isTLS,
		strand:  make(chan func(), 64),
	}
	c.br = httpwire.GetReader(netConn)
	c.bw = httpwire.GetWriter(netConn)
	c.parser = httpwire.GetParser(c.br)
	return c
}

// Run starts the connection's strand loop and its first read.
func (c *Connection) Run() {
	go c.loop()
	c.post(func() { c.doReadHeader(false) })
}

func (c *Connection) loop() {
	for fn := range c.strand {
		fn()
	}
}

// post enqueues fn onto the connection's strand. It is a no-op once the
// connection has closed.
func (c *Connection) post(fn func()) {
	if c.closed.Load() {
		return
	}
	defer func() { recover() }()
	c.strand <- fn
}

func (c *Connection) setState(s connState) { c.state.Store(int32(s)) }

// setReadDeadline arms (or, for d <= 0, disarms) the read-phase timeout.
func (c *Connection) setReadDeadline(d time.Duration) {
	if d <= 0 {
		c.netConn.SetReadDeadline(time.Time{})
		return
	}
	c.netConn.SetReadDeadline(time.Now().Add(d))
}

func (c *Connection) setWriteDeadline(d time.Duration) {
	if d <= 0 {
		c.netConn.SetWriteDeadline(time.Time{})
		return
	}
	c.netConn.SetWriteDeadline(time.Now().Add(d))
}

// doReadHeader blocks on the next request head. A connection recycled after
// a keep-alive response waits out the idle window on top of the header
// expiry; a fresh connection gets the header expiry alone.
func (c *Connection) doReadHeader(idle bool) {
	c.setState(stateReadingHeader)
	expiry := c.server.headerReadExpiry
	if idle {
		expiry += c.server.keepAliveTimeout
	}
	c.setReadDeadline(expiry)

	req := httpwire.GetRequest()
	if err := c.parser.ParseHead(req, httpwire.DefaultLimits); err != nil {
		httpwire.PutRequest(req)
		c.doClose()
		return
	}
	c.doRoute(req)
}

func (c *Connection) doRoute(req *httpwire.Request) {
	c.setState(stateRouting)
	result := c.server.routes.Route(req.Method, req.Path)
	if result.Handler == nil {
		httpwire.PutRequest(req)
		c.doClose()
		return
	}
	c.doReadBody(req, result)
}

func (c *Connection) doReadBody(req *httpwire.Request, result RouteResult) {
	c.setState(stateReadingBody)
	// The route's resolved read expiry; zero after resolution means no
	// timer for this phase.
	c.setReadDeadline(result.Limits.ReadExpiry)

	maxBody := result.Limits.MaxBody
	if maxBody <= 0 {
		maxBody = httpwire.DefaultLimits.MaxBody
	}
	if err := c.parser.ReadBody(req, maxBody); err != nil {
		httpwire.PutRequest(req)
		c.doClose()
		return
	}
	c.doDispatch(req, result)
}

func (c *Connection) doDispatch(req *httpwire.Request, result RouteResult) {
	c.setState(stateDispatching)
	c.writeExpiry = result.Limits.WriteExpiry
	if c.server.metrics != nil {
		c.server.metrics.requestsTotal.WithLabelValues(req.Method.String()).Inc()
	}
	task := NewTask(c, req, result)
	task.Start()
}

// finishTask is invoked off-strand by a Task completing its pipeline; it
// posts the actual write onto the strand to preserve single-writer
// ordering.
func (c *Connection) finishTask(req *httpwire.Request, resp *httpwire.Response, keepAlive bool) {
	c.post(func() { c.writeResponse(req, resp, keepAlive) })
}

func (c *Connection) writeResponse(req *httpwire.Request, resp *httpwire.Response, keepAlive bool) {
	c.setState(stateWriting)
	c.setWriteDeadline(c.writeExpiry)

	timeoutSeconds := int(c.server.keepAliveTimeout / time.Second)
	if timeoutSeconds < 1 {
		timeoutSeconds = 1
	}
	if keepAlive {
		resp.Header.Set(httpwire.HeaderConnection, httpwire.ValueKeepAlive)
		resp.Header.Set(httpwire.HeaderKeepAlive, "timeout="+strconv.Itoa(timeoutSeconds))
	} else {
		resp.Header.Set(httpwire.HeaderConnection, httpwire.ValueClose)
	}
	resp.Header.Set(httpwire.HeaderContentLength, strconv.Itoa(resp.Body.Len()))

	err := writeResponseHead(c.bw, resp)
	if err == nil {
		_, err = c.bw.Write(resp.Body.Bytes())
	}
	if err == nil {
		err = c.bw.Flush()
	}
	httpwire.PutRequest(req)
	httpwire.PutResponse(resp)
	if err != nil {
		c.doClose()
		return
	}

	if keepAlive {
		c.recycle()
	} else {
		c.doClose()
	}
}

func writeResponseHead(bw *bufio.Writer, resp *httpwire.Response) error {
	status := resp.StatusCode
	if status == 0 {
		status = 200
	}
	text := httpwire.StatusText(status)
	if text == "" {
		text = "Unknown"
	}
	if _, err := bw.WriteString("HTTP/1.1 " + strconv.Itoa(status) + " " + text + "\r\n"); err != nil {
		return err
	}
	var err error
	resp.Header.Each(func(name, value string) {
		if err != nil {
			return
		}
		_, err = bw.WriteString(name + ": " + value + "\r\n")
	})
	if err != nil {
		return err
	}
	_, err = bw.WriteString("\r\n")
	return err
}

// enqueueHeader appends a header-only chunk to the streamed-write queue.
func (c *Connection) enqueueHeader(resp *httpwire.Response) {
	c.post(func() {
		c.writeQueue = append(c.writeQueue, writeItem{header: resp})
		c.pumpWriteQueue()
	})
}

// enqueueBody appends a body chunk to the streamed-write queue.
func (c *Connection) enqueueBody(chunk []byte) {
	c.post(func() {
		c.writeQueue = append(c.writeQueue, writeItem{body: chunk})
		c.pumpWriteQueue()
	})
}

// pumpWriteQueue issues at most one async write at a time, guarded by
// isWriting; the next item is dequeued only after the current write
// completes. Must run on the strand.
func (c *Connection) pumpWriteQueue() {
	if c.isWriting {
		return
	}
	if len(c.writeQueue) == 0 {
		if c.closePending {
			c.doClose()
		} else if c.recyclePending {
			c.recyclePending = false
			c.recycleNow()
		}
		return
	}
	item := c.writeQueue[0]
	c.writeQueue = c.writeQueue[1:]
	c.isWriting = true
	expiry := c.writeExpiry

	go func() {
		c.setWriteDeadline(expiry)
		var err error
		if item.header != nil {
			err = writeResponseHead(c.bw, item.header)
		} else {
			_, err = c.bw.Write(item.body)
		}
		if err == nil {
			err = c.bw.Flush()
		}
		c.post(func() {
			c.isWriting = false
			if err != nil {
				c.doClose()
				return
			}
			c.pumpWriteQueue()
		})
	}()
}

// recycle returns the connection to reading the next request, deferring
// until the streamed-write queue has drained. Must run on the strand.
func (c *Connection) recycle() {
	if c.isWriting || len(c.writeQueue) > 0 {
		c.recyclePending = true
		return
	}
	c.recycleNow()
}

// recycleNow installs a fresh parser state, disarms the write deadline, and
// re-enters ReadingHeader with the idle window armed. Must run on the
// strand with the write queue empty.
func (c *Connection) recycleNow() {
	c.setState(stateRecycling)
	c.parser.Reset(c.br)
	c.setWriteDeadline(0)
	c.setState(stateIdle)
	c.post(func() { c.doReadHeader(true) })
}

// Recycle is the manual-mode counterpart to the automatic keep-alive path:
// once the application has finished driving streamed writes, it returns the
// connection to reading the next request.
func (c *Connection) Recycle() {
	c.post(c.recycle)
}

// Close is the exported, idempotent teardown used by manual-mode handlers
// once streaming completes. Chunks already queued are written out before
// the stream shuts down.
func (c *Connection) Close() {
	c.post(func() {
		if c.isWriting || len(c.writeQueue) > 0 {
			c.closePending = true
			return
		}
		c.doClose()
	})
}

func (c *Connection) doClose() {
	if c.closed.Swap(true) {
		return
	}
	c.setState(stateClosed)
	// A streamed write still in flight owns the buffered writer; let the
	// pool entries go unreturned rather than recycle them out from under it.
	if !c.isWriting {
		httpwire.PutReader(c.br)
		httpwire.PutWriter(c.bw)
		httpwire.PutParser(c.parser)
	}

	// TLS shutdown sends a close_notify before the socket closes; plaintext
	// connections get a half-close (shutdown_both equivalent) first.
	if !c.isTLS {
		if tc, ok := c.netConn.(interface{ CloseWrite() error }); ok {
			tc.CloseWrite()
		}
	}
	c.netConn.Close()
	if c.server.metrics != nil {
		c.server.metrics.connectionsActive.Dec()
	}
	close(c.strand)
}
