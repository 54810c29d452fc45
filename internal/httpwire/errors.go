package httpwire

import "errors"

// Parse and framing errors. Every one of these is non-recoverable for the
// connection that produced it: the caller closes rather than tries to
// resynchronize the stream.
var (
	ErrInvalidRequestLine                = errors.New("httpwire: invalid request line")
	ErrRequestLineTooLarge               = errors.New("httpwire: request line too large")
	ErrInvalidMethod                     = errors.New("httpwire: invalid method")
	ErrInvalidPath                       = errors.New("httpwire: invalid path")
	ErrURITooLong                        = errors.New("httpwire: request-URI too long")
	ErrInvalidProtocol                   = errors.New("httpwire: unsupported HTTP version")
	ErrHeadersTooLarge                   = errors.New("httpwire: headers too large")
	ErrInvalidHeader                     = errors.New("httpwire: invalid header")
	ErrHeaderTooLarge                    = errors.New("httpwire: header too large")
	ErrInvalidContentLength              = errors.New("httpwire: invalid Content-Length")
	ErrDuplicateContentLength            = errors.New("httpwire: conflicting duplicate Content-Length")
	ErrContentLengthWithTransferEncoding = errors.New("httpwire: Content-Length and Transfer-Encoding both present")
	ErrUnexpectedEOF                     = errors.New("httpwire: unexpected EOF reading request")
	ErrBodyTooLarge                      = errors.New("httpwire: request body exceeds route limit")
	ErrChunkedMalformed                  = errors.New("httpwire: malformed chunked body")
)
