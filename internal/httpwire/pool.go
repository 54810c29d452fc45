package httpwire

import (
	"bufio"
	"io"
	"sync"
)

var requestPool = sync.Pool{
	New: func() any { return &Request{} },
}

// GetRequest returns a zeroed Request from the pool.
func GetRequest() *Request {
	req := requestPool.Get().(*Request)
	req.Reset()
	return req
}

// PutRequest returns req to the pool. Callers must not use req afterward.
func PutRequest(req *Request) {
	requestPool.Put(req)
}

var responsePool = sync.Pool{
	New: func() any { return &Response{StatusCode: 200} },
}

// GetResponse returns a reset Response from the pool: status 200, no
// headers, empty body.
func GetResponse() *Response {
	resp := responsePool.Get().(*Response)
	resp.Reset()
	return resp
}

// PutResponse returns resp to the pool. Callers must not use resp afterward.
func PutResponse(resp *Response) {
	responsePool.Put(resp)
}

var readerPool = sync.Pool{
	New: func() any { return bufio.NewReaderSize(nil, 4096) },
}

// GetReader returns a pooled bufio.Reader bound to underlying.
func GetReader(underlying io.Reader) *bufio.Reader {
	br := readerPool.Get().(*bufio.Reader)
	br.Reset(underlying)
	return br
}

// PutReader returns br to the pool.
func PutReader(br *bufio.Reader) {
	readerPool.Put(br)
}

var writerPool = sync.Pool{
	New: func() any { return bufio.NewWriterSize(nil, 4096) },
}

// GetWriter returns a pooled bufio.Writer bound to underlying.
func GetWriter(underlying io.Writer) *bufio.Writer {
	bw := writerPool.Get().(*bufio.Writer)
	bw.Reset(underlying)
	return bw
}

// PutWriter returns bw to the pool.
func PutWriter(bw *bufio.Writer) {
	writerPool.Put(bw)
}

var parserPool = sync.Pool{
	New: func() any { return &Parser{} },
}

// GetParser returns a pooled Parser bound to br.
func GetParser(br *bufio.Reader) *Parser {
	p := parserPool.Get().(*Parser)
	p.Reset(br)
	return p
}

// PutParser returns p to the pool.
func PutParser(p *Parser) {
	parserPool.Put(p)
}
