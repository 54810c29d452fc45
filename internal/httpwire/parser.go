package httpwire

import (
	"bufio"
	"io"
	"strconv"
)

// Limits bounds the resources a single request parse may consume. ParseHead
// applies the line, header-size and header-count fields; the body limit is
// passed to ReadBody separately, once the route's resolved max body is
// known.
type Limits struct {
	MaxRequestLineSize int
	MaxHeaderSize      int
	MaxHeaderCount     int
	MaxBody            int64
}

// DefaultLimits mirrors the server's documented defaults, used for the
// request line and headers before the route (and its body limit) is known.
var DefaultLimits = Limits{
	MaxRequestLineSize: 8 * 1024,
	MaxHeaderSize:      8 * 1024,
	MaxHeaderCount:     100,
	MaxBody:            1 << 20,
}

// Parser reads one HTTP/1.1 request at a time from a buffered connection
// reader. It holds no state across requests beyond scratch buffers, so a
// single Parser can be pooled and reused for every request on a keep-alive
// connection.
type Parser struct {
	br *bufio.Reader
}

// NewParser wraps br for request parsing.
func NewParser(br *bufio.Reader) *Parser {
	return &Parser{br: br}
}

// Reset rebinds the parser to a new reader, for pooled reuse.
func (p *Parser) Reset(br *bufio.Reader) {
	p.br = br
}

// ParseHead reads the request line and headers into req, stopping short of
// the body. The caller resolves route-specific limits and then calls
// ReadBody to finish consuming the request.
func (p *Parser) ParseHead(req *Request, lim Limits) error {
	if err := p.parseRequestLine(req, lim.MaxRequestLineSize); err != nil {
		return err
	}
	if err := p.parseHeaders(req, lim); err != nil {
		return err
	}
	return nil
}

func (p *Parser) parseRequestLine(req *Request, maxSize int) error {
	line, err := p.readBoundedLine(maxSize)
	if err != nil {
		if err == errLineTooLong {
			return ErrRequestLineTooLarge
		}
		return ErrUnexpectedEOF
	}
	if len(line) == 0 {
		return ErrInvalidRequestLine
	}

	methodEnd := indexByte(line, ' ')
	if methodEnd < 0 {
		return ErrInvalidRequestLine
	}
	methodTok := line[:methodEnd]
	if !validToken(methodTok) {
		return ErrInvalidMethod
	}
	rest := line[methodEnd+1:]

	uriEnd := indexByte(rest, ' ')
	if uriEnd < 0 {
		return ErrInvalidRequestLine
	}
	uri := rest[:uriEnd]
	proto := string(rest[uriEnd+1:])

	if len(uri) == 0 || uri[0] != '/' {
		return ErrInvalidPath
	}
	if len(uri) > DefaultLimits.MaxRequestLineSize {
		return ErrURITooLong
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return ErrInvalidProtocol
	}

	path, rawQuery, _ := cutByte(string(uri), '?')

	req.Method = ParseMethod(methodTok)
	req.Path = path
	req.RawQuery = rawQuery
	req.Proto = proto
	req.KeepAlive = proto != "HTTP/1.0"
	return nil
}

func (p *Parser) parseHeaders(req *Request, lim Limits) error {
	total := 0
	hasContentLength := false
	hasTransferEncoding := false
	var contentLength int64

	for {
		line, err := p.readBoundedLine(lim.MaxHeaderSize)
		if err != nil {
			if err == errLineTooLong {
				return ErrHeaderTooLarge
			}
			return ErrUnexpectedEOF
		}
		if len(line) == 0 {
			break
		}
		total += len(line)
		if total > lim.MaxHeaderSize {
			return ErrHeadersTooLarge
		}

		colon := indexByte(line, ':')
		if colon <= 0 {
			return ErrInvalidHeader
		}
		name := string(trimOWS(line[:colon]))
		value := string(trimOWS(line[colon+1:]))
		if !validToken([]byte(name)) {
			return ErrInvalidHeader
		}
		if err := req.Header.Add(name, value); err != nil {
			return err
		}

		switch {
		case equalFold(name, HeaderContentLength):
			if hasContentLength {
				return ErrDuplicateContentLength
			}
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return ErrInvalidContentLength
			}
			hasContentLength = true
			contentLength = n
		case equalFold(name, HeaderTransferEncoding):
			if equalFoldStr(value, ValueChunked) {
				hasTransferEncoding = true
			}
		case equalFold(name, HeaderHost):
			req.Host = value
		case equalFold(name, HeaderConnection):
			if equalFoldStr(value, ValueClose) {
				req.KeepAlive = false
			} else if equalFoldStr(value, ValueKeepAlive) {
				req.KeepAlive = true
			}
		}

		if countHeaderLines(&req.Header) > lim.MaxHeaderCount {
			return ErrHeadersTooLarge
		}
	}

	if hasContentLength && hasTransferEncoding {
		return ErrContentLengthWithTransferEncoding
	}
	if req.Proto == "HTTP/1.1" && req.Host == "" {
		return ErrInvalidHeader
	}

	req.ContentLength = contentLength
	req.Chunked = hasTransferEncoding
	return nil
}

// ReadBody consumes the request body according to the framing resolved
// during ParseHead, bounded by maxBody (typically the matched route's
// resolved limit, falling back to DefaultLimits.MaxBody).
func (p *Parser) ReadBody(req *Request, maxBody int64) error {
	switch {
	case req.Chunked:
		body, err := readChunkedBody(p.br, maxBody)
		if err != nil {
			return err
		}
		req.Body = body
		return nil
	case req.ContentLength > 0:
		if req.ContentLength > maxBody {
			return ErrBodyTooLarge
		}
		body := make([]byte, req.ContentLength)
		if _, err := io.ReadFull(p.br, body); err != nil {
			return ErrUnexpectedEOF
		}
		req.Body = body
		return nil
	default:
		req.Body = req.Body[:0]
		return nil
	}
}

func countHeaderLines(h *Header) int {
	return len(h.names)
}

var errLineTooLong = errLine{}

type errLine struct{}

func (errLine) Error() string { return "httpwire: line exceeds limit" }

// readBoundedLine reads one CRLF-terminated header/request line, rejecting
// lines longer than max before the delimiter is ever found.
func (p *Parser) readBoundedLine(max int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := p.br.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > max {
			return nil, errLineTooLong
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return nil, err
	}
	return trimCR(line), nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func trimOWS(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}

func validToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c <= 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

func equalFold(a string, b string) bool {
	return equalFoldStr(a, b)
}

func equalFoldStr(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
