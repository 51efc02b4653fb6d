package adapter

import (
	"github.com/tailrecursion/servlet-adapter/servlet"
)

type listenerClass struct {
	module      string
	initialized servlet.ContextFunc
	destroyed   servlet.ContextFunc
}

// ContextListener forwards context lifecycle events to the module's
// context-initialized and context-destroyed callables.
type ContextListener struct {
	class *listenerClass
}

var _ servlet.ContextListener = (*ContextListener)(nil)

func (l *ContextListener) ContextInitialized(ev *servlet.ContextEvent) error {
	return l.class.initialized(ev)
}

func (l *ContextListener) ContextDestroyed(ev *servlet.ContextEvent) error {
	return l.class.destroyed(ev)
}

func (l *ContextListener) Module() string {
	return l.class.module
}
