package container

import (
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"

	"github.com/tailrecursion/servlet-adapter/servlet"
)

const errBody500 = "<html><body><h1>500 internal server error</h1></body></html>\n"
const errBody503 = "<html><body><h1>503 service unavailable</h1></body></html>\n"

// replyError writes a 500 response, or 503 when err is a
// *servlet.UnavailableError. In dev mode the error message is included.
// Returns the status code sent.
func replyError(w http.ResponseWriter, err error, devMode bool) int {
	status := http.StatusInternalServerError
	title := "500 internal server error"
	body := errBody500

	var unavailable *servlet.UnavailableError
	if errors.As(err, &unavailable) {
		status = http.StatusServiceUnavailable
		title = "503 service unavailable"
		body = errBody503
		if !unavailable.Permanent() {
			secs := int(unavailable.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	if devMode && err != nil {
		body = fmt.Sprintf(
			"<html><body>"+
				"<h1>%s</h1>"+
				"<pre style='white-space:pre-wrap'>%s\n</pre>"+
				"</body></html>\n",
			title,
			html.EscapeString(err.Error()),
		)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	io.WriteString(w, body)
	return status
}
