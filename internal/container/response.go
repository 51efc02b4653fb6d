package container

import (
	"io"
	"net/http"
)

// response implements servlet.Response and remembers the status code sent
type response struct {
	w           http.ResponseWriter
	status      int
	wroteHeader bool
}

func newResponse(w http.ResponseWriter) *response {
	return &response{w: w}
}

func (w *response) Header() http.Header {
	return w.w.Header()
}

func (w *response) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = statusCode
	w.w.WriteHeader(statusCode)
}

func (w *response) Write(b []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.w.Write(b)
}

func (w *response) WriteString(s string) (int, error) {
	w.WriteHeader(http.StatusOK)
	return io.WriteString(w.w, s)
}

func (w *response) Flush() bool {
	flusher, ok := w.w.(http.Flusher)
	if ok {
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
	}
	return ok
}

func (w *response) UnderlyingObject() any {
	return w.w
}

// Status returns the status sent, or 200 if nothing was written
func (w *response) Status() int {
	if !w.wroteHeader {
		return http.StatusOK
	}
	return w.status
}
