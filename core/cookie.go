package core

import (
	"strconv"
	"strings"
	"time"
)

// ParseCookies splits a request's Cookie header into a case-sensitive
// name->value map. Pairs are split on ';', trimmed, split again on the
// first '=', and a value wrapped in a single pair of double quotes has
// them stripped. Entries with an empty name are dropped.
func ParseCookies(header string) map[string]string {
	out := make(map[string]string)
	if header == "" {
		return out
	}
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if found {
			value = strings.TrimSpace(value)
			if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
				value = value[1 : len(value)-1]
			}
		} else {
			value = ""
		}
		out[name] = value
	}
	return out
}

// httpTimeFormat is the RFC 1123 variant HTTP requires for date headers.
const httpTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// SameSite is the SameSite attribute of an outbound cookie.
type SameSite int

const (
	SameSiteDefault SameSite = iota
	SameSiteStrict
	SameSiteLax
	SameSiteNone
)

// SetCookie describes one outbound Set-Cookie header.
type SetCookie struct {
	Name      string
	Value     string
	Expires   time.Time
	Path      string
	Domain    string
	MaxAge    int
	HasMaxAge bool
	SameSite  SameSite
	Secure    bool
	HTTPOnly  bool
}

// Build renders c as a Set-Cookie field value, in the fixed attribute order
// name=value; Expires; Path; Domain; Max-Age; SameSite; Secure; HttpOnly.
// A missing Name or Value yields an empty string (nothing is emitted).
// SameSite=None forces Secure on even if the caller never set it.
func (c SetCookie) Build() string {
	if c.Name == "" || c.Value == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)

	if !c.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(httpTimeFormat))
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.HasMaxAge {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	}

	secure := c.Secure
	switch c.SameSite {
	case SameSiteStrict:
		b.WriteString("; SameSite=Strict")
	case SameSiteLax:
		b.WriteString("; SameSite=Lax")
	case SameSiteNone:
		b.WriteString("; SameSite=None")
		secure = true
	}
	if secure {
		b.WriteString("; Secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}
