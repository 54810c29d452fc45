package httpwire

import "bytes"

// Response accumulates a handler's output before it is serialized onto the
// wire by the connection's write phase. It supports both the automatic path
// (a single buffered write at the end of dispatch) and the streamed path
// (the task's WriteHeader/WriteBody calls, queued in manual mode).
type Response struct {
	StatusCode int
	Header     Header
	Body       bytes.Buffer

	// HeaderSent marks whether the status line and headers have already
	// been handed to the connection's write queue. The queued header chunk
	// refers to this Response, so it is serialized from whatever Header
	// holds when that write is issued.
	HeaderSent bool
}

// Reset clears the response for reuse from a pool.
func (r *Response) Reset() {
	r.StatusCode = 200
	r.Header.Reset()
	r.Body.Reset()
	r.HeaderSent = false
}

// SetBody replaces the response body outright.
func (r *Response) SetBody(b []byte) {
	r.Body.Reset()
	r.Body.Write(b)
}

// AppendBody appends to whatever body has already been written.
func (r *Response) AppendBody(b []byte) {
	r.Body.Write(b)
}

var statusText = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	414: "URI Too Long",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

// StatusText returns the reason phrase for code, defaulting to "" for
// unrecognized codes so the caller can fall back to a generic phrase.
func StatusText(code int) string {
	return statusText[code]
}
