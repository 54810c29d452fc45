package httpwire

import "strings"

// Header holds HTTP header fields in registration order. Lookups are
// case-insensitive per RFC 7230; the original casing of each name is kept
// for serialization.
type Header struct {
	names  []string
	values []string
}

// Add appends a header, preserving duplicates (needed for repeated
// Set-Cookie-style fields and for detecting duplicate Content-Length).
func (h *Header) Add(name, value string) error {
	if strings.ContainsAny(name, "\r\n") || strings.ContainsAny(value, "\r\n") {
		return ErrInvalidHeader
	}
	h.names = append(h.names, name)
	h.values = append(h.values, value)
	return nil
}

// Set replaces all existing values for name with a single value.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.names = append(h.names, name)
	h.values = append(h.values, value)
}

// Get returns the first value for name, or "" if absent.
func (h *Header) Get(name string) string {
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			return h.values[i]
		}
	}
	return ""
}

// Values returns every value stored under name, in registration order.
func (h *Header) Values(name string) []string {
	var out []string
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			out = append(out, h.values[i])
		}
	}
	return out
}

// Del removes every entry whose name matches, case-insensitively.
func (h *Header) Del(name string) {
	names := h.names[:0]
	values := h.values[:0]
	for i, n := range h.names {
		if !strings.EqualFold(n, name) {
			names = append(names, n)
			values = append(values, h.values[i])
		}
	}
	h.names = names
	h.values = values
}

// Count returns the number of matching entries for name.
func (h *Header) Count(name string) int {
	n := 0
	for _, k := range h.names {
		if strings.EqualFold(k, name) {
			n++
		}
	}
	return n
}

// Reset clears the header for reuse from a pool.
func (h *Header) Reset() {
	h.names = h.names[:0]
	h.values = h.values[:0]
}

// Each calls fn for every name/value pair in registration order.
func (h *Header) Each(fn func(name, value string)) {
	for i, n := range h.names {
		fn(n, h.values[i])
	}
}

const (
	HeaderContentLength    = "Content-Length"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderConnection       = "Connection"
	HeaderHost             = "Host"
	HeaderCookie           = "Cookie"
	HeaderSetCookie        = "Set-Cookie"
	HeaderKeepAlive        = "Keep-Alive"
	HeaderContentType      = "Content-Type"

	ValueClose     = "close"
	ValueKeepAlive = "keep-alive"
	ValueChunked   = "chunked"
)
