package adapter

import (
	"github.com/tailrecursion/servlet-adapter/servlet"
)

// servletClass holds the callables shared by all Servlet adapters of a Host.
// Immutable once resolved.
type servletClass struct {
	module  string
	init    servlet.InitFunc
	service servlet.ServiceFunc
	destroy servlet.DestroyFunc
}

// Servlet forwards the servlet lifecycle to the module's init, service and
// destroy callables.
type Servlet struct {
	class *servletClass
}

var _ servlet.Servlet = (*Servlet)(nil)

// Init passes cfg to the module's init.
func (s *Servlet) Init(cfg servlet.Config) error {
	return s.class.init(cfg)
}

// Service passes the request and response to the module's service.
// It is safe for concurrent use if the module's service is.
func (s *Servlet) Service(req servlet.Request, res servlet.Response) error {
	return s.class.service(req, res)
}

// Destroy calls the module's destroy.
func (s *Servlet) Destroy() error {
	return s.class.destroy()
}

// Module returns the name of the module the callables were resolved from.
func (s *Servlet) Module() string {
	return s.class.module
}
