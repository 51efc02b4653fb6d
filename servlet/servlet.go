// Package servlet is the API shared by the servlet container, the adapters and
// dynamically loaded implementation modules.
//
// An implementation module is compiled against this package and exports five
// functions which the adapters resolve by name:
//
//	func Init(cfg servlet.Config) error
//	func Service(req servlet.Request, res servlet.Response) error
//	func Destroy() error
//	func ContextInitialized(ev *servlet.ContextEvent) error
//	func ContextDestroyed(ev *servlet.ContextEvent) error
//
// Variants without the error result are accepted as well.
package servlet

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Servlet is the lifecycle contract the container drives for request handling.
type Servlet interface {
	Init(cfg Config) error
	Service(req Request, res Response) error
	Destroy() error
}

// ContextListener receives application context lifecycle notifications.
type ContextListener interface {
	ContextInitialized(ev *ContextEvent) error
	ContextDestroyed(ev *ContextEvent) error
}

// Signatures of the callables an implementation module exports.
// These are aliases, not defined types, so that plain funcs exported from a Go
// plugin satisfy a type assertion against them.
type (
	InitFunc    = func(Config) error
	ServiceFunc = func(Request, Response) error
	DestroyFunc = func() error
	ContextFunc = func(*ContextEvent) error

	// Result-less variants; any return value is ignored
	InitProc    = func(Config)
	ServiceProc = func(Request, Response)
	DestroyProc = func()
	ContextProc = func(*ContextEvent)
)

// Config is handed to Servlet.Init
type Config interface {
	ServletName() string
	InitParameter(name string) string
	InitParameterNames() []string
	ServletContext() Context
}

// Context is the application-wide context shared by all servlets and
// listeners of one container.
type Context interface {
	ContextPath() string
	InitParameter(name string) string
	InitParameterNames() []string

	// Attributes are safe for concurrent use
	Attribute(name string) any
	SetAttribute(name string, v any)
	RemoveAttribute(name string)

	// Log writes a structured message to the container log
	Log(msg string, args ...any)
}

// ContextEvent is passed to ContextListener callbacks.
type ContextEvent struct {
	Context Context
}

// ServletContext returns the context the event is about.
func (e *ContextEvent) ServletContext() Context {
	return e.Context
}

type Request interface {
	URL() *url.URL
	Method() string
	Header() http.Header
	Body() io.ReadCloser
	Context() context.Context
	UnderlyingObject() any // *http.Request
}

type Response interface {
	Header() http.Header
	Write([]byte) (int, error)
	WriteString(string) (int, error)
	WriteHeader(statusCode int)
	Flush() bool
	UnderlyingObject() any // http.ResponseWriter
}
