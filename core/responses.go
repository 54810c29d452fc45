package core

import (
	"github.com/goccy/go-json"
	"github.com/yourusername/bsrvcore/internal/httpwire"
)

// defaultFallbackPayload is marshaled once at package init, mirroring the
// pre-encoded-bytes-plus-fallback pattern used for hot response paths: the
// unmatched-route body never changes, so there is no reason to re-encode
// it per request.
type defaultFallbackPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var defaultFallbackBody = mustEncode(defaultFallbackPayload{
	Message: "Service is not available currently",
	Code:    404,
})

func mustEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// JSON encodes v with goccy/go-json and sets it as the task's response
// body along with a JSON content type.
func (t *Task) JSON(status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.SetStatus(status)
	t.SetHeader(httpwire.HeaderContentType, "application/json")
	t.SetBody(b)
	return nil
}
