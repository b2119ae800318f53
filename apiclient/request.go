package apiclient

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Request describes one call. It is never mutated by the client, so the same
// Request can be dispatched again after a token refresh.
type Request struct {
	Method string

	// Path is resolved against the base URL unless it is absolute.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// NoRefresh returns a 401 to the caller instead of refreshing. Login uses
	// it because a 401 there means bad credentials.
	NoRefresh bool
}

// NewJSONRequest builds a request with body marshalled as JSON. A nil body
// sends no payload.
func NewJSONRequest(method, path string, body any) (*Request, error) {
	req := &Request{Method: method, Path: path}
	if body == nil {
		return req, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "NewJSONRequest %s %s", method, path)
	}
	req.Body = b
	req.Header = http.Header{"Content-Type": []string{"application/json"}}
	return req, nil
}

// Response is a fully read HTTP response.
type Response struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns an *HTTPError when the status is >= 400.
func (r *Response) Err() error {
	if r.StatusCode < http.StatusBadRequest {
		return nil
	}
	return &HTTPError{Method: r.Method, Path: r.Path, StatusCode: r.StatusCode, Body: r.Body}
}

// DecodeJSON unmarshals the body into v. It returns an *HTTPError for status
// >= 400 and ignores v for an empty body.
func (r *Response) DecodeJSON(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrapf(err, "decode %s %s", r.Method, r.Path)
	}
	return nil
}
