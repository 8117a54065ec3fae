package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Request describes one outbound call to the remote API. Path is either a
// path under the gateway's base URL or a fully qualified URL (paginated
// responses hand back absolute "next" links). Body, when non-nil, is
// marshalled to JSON exactly once so the one permitted retry replays
// identical bytes.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Response is the decoded outcome of a successful (2xx) call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into dst.
func (r *Response) DecodeJSON(dst any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return errors.Wrap(err, "[Response.DecodeJSON] unmarshal")
	}
	return nil
}

func (req *Request) marshalBody() ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	raw, err := json.Marshal(req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "[Request] marshal body")
	}
	return raw, nil
}

func (req *Request) resolveURL(baseURL string) string {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}
	return target
}

func (req *Request) build(baseURL string, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequest(req.Method, req.resolveURL(baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[Request] build")
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}
