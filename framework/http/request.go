package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/km-arc/go-overlay/framework/http/validation"
)

const maxBody = 1 << 20 // 1 MB

// ErrEmptyBody is returned by Bind for a request without a body.
var ErrEmptyBody = errors.New("empty request body")

// Request wraps *http.Request with binding and lookup helpers.
type Request struct {
	raw *http.Request
}

// NewRequest wraps a standard *http.Request.
func NewRequest(r *http.Request) *Request {
	return &Request{raw: r}
}

// Raw returns the underlying *http.Request.
func (req *Request) Raw() *http.Request { return req.raw }

// ── Binding ──────────────────────────────────────────────────────────────────

// Bind decodes the JSON request body into v. JSON fields map via
// `json:"name"`; unknown fields are ignored.
func (req *Request) Bind(v any) error {
	if req.raw.Body == nil {
		return ErrEmptyBody
	}
	defer req.raw.Body.Close()

	if ct := req.ContentType(); ct != "" && !strings.Contains(ct, "application/json") {
		return fmt.Errorf("unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(req.raw.Body, maxBody))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(body, v)
}

// BindValid binds the body into v and validates it. A decoding failure is
// returned as err; a validation failure as a non-nil error bag.
func (req *Request) BindValid(v any) (*validation.Errors, error) {
	if err := req.Bind(v); err != nil {
		return nil, err
	}
	return validation.Struct(v), nil
}

// ── Lookup helpers ───────────────────────────────────────────────────────────

// Query returns a query-string value.
func (req *Request) Query(key string, fallback ...string) string {
	v := req.raw.URL.Query().Get(key)
	if v == "" && len(fallback) > 0 {
		return fallback[0]
	}
	return v
}

// RouteParam returns a URL route parameter (chi).
func (req *Request) RouteParam(key string) string {
	return chi.URLParam(req.raw, key)
}

// Header returns a request header value.
func (req *Request) Header(key string) string {
	return req.raw.Header.Get(key)
}

// ContentType returns the Content-Type header value.
func (req *Request) ContentType() string {
	return req.raw.Header.Get("Content-Type")
}

// WantsHTML is true when the client asked for text/html.
func (req *Request) WantsHTML() bool {
	return strings.Contains(req.raw.Header.Get("Accept"), "text/html")
}
