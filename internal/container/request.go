package container

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// request implements servlet.Request
type request struct {
	r *http.Request
}

func (r *request) URL() *url.URL {
	return r.r.URL
}

func (r *request) Method() string {
	return r.r.Method
}

func (r *request) Header() http.Header {
	return r.r.Header
}

func (r *request) Body() io.ReadCloser {
	return r.r.Body
}

func (r *request) Context() context.Context {
	return r.r.Context()
}

func (r *request) UnderlyingObject() any {
	return r.r
}
