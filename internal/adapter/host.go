// Package adapter forwards container lifecycle calls to callables resolved by
// name from an implementation module.
//
// Two adapters exist: Servlet (init, service, destroy) and ContextListener
// (context-initialized, context-destroyed). Neither does any work of its own;
// arguments are passed through unmodified and errors are returned unchanged.
package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tailrecursion/servlet-adapter/internal/logger"
	"github.com/tailrecursion/servlet-adapter/internal/module"
)

// Naming contract between the adapters and the implementation module.
const (
	ModuleName = "tailrecursion.clojure-adapter-servlet.impl"

	SymbolInit               = "init"
	SymbolService            = "service"
	SymbolDestroy            = "destroy"
	SymbolContextInitialized = "context-initialized"
	SymbolContextDestroyed   = "context-destroyed"
)

// Host resolves the adapters' callables. Each adapter kind is resolved at most
// once per Host, the first time it is asked for, and every adapter handed out
// afterwards shares the resolved callables.
//
// Both adapter kinds require the module through the same module.Cache, so the
// module itself is loaded at most once no matter which adapter comes first.
type Host struct {
	modules    *module.Cache
	moduleName string

	servlets  lazy[*servletClass]
	listeners lazy[*listenerClass]
}

// Option configures a Host.
type Option func(*Host)

// WithModuleName overrides the implementation module name.
func WithModuleName(name string) Option {
	return func(h *Host) {
		h.moduleName = name
	}
}

func NewHost(modules *module.Cache, opts ...Option) *Host {
	h := &Host{
		modules:    modules,
		moduleName: ModuleName,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ModuleName returns the name of the implementation module.
func (h *Host) ModuleName() string {
	return h.moduleName
}

// Module requires the implementation module without resolving any symbol.
func (h *Host) Module(ctx context.Context) (module.Module, error) {
	return h.modules.Require(ctx, h.moduleName)
}

// Servlet returns a Servlet adapter. The first call loads the module and
// resolves init, service and destroy; a failure to do so is returned by this
// and every later call.
func (h *Host) Servlet(ctx context.Context) (*Servlet, error) {
	class, err := h.servlets.get(ctx, h.resolveServlet)
	if err != nil {
		return nil, err
	}
	return &Servlet{class: class}, nil
}

// ContextListener returns a ContextListener adapter, resolving
// context-initialized and context-destroyed on first use.
func (h *Host) ContextListener(ctx context.Context) (*ContextListener, error) {
	class, err := h.listeners.get(ctx, h.resolveListener)
	if err != nil {
		return nil, err
	}
	return &ContextListener{class: class}, nil
}

// Preload resolves both adapter kinds and returns the joined failures.
func (h *Host) Preload(ctx context.Context) error {
	_, serr := h.Servlet(ctx)
	_, lerr := h.ContextListener(ctx)
	return errors.Join(serr, lerr)
}

func (h *Host) resolveServlet(ctx context.Context) (*servletClass, error) {
	m, err := h.modules.Require(ctx, h.moduleName)
	if err != nil {
		return nil, err
	}

	c := &servletClass{module: m.Name()}
	if c.init, err = bindInit(m); err != nil {
		return nil, err
	}
	if c.service, err = bindService(m); err != nil {
		return nil, err
	}
	if c.destroy, err = bindDestroy(m); err != nil {
		return nil, err
	}

	logger.Debug("servlet adapter resolved", logger.KeyModule, c.module)
	return c, nil
}

func (h *Host) resolveListener(ctx context.Context) (*listenerClass, error) {
	m, err := h.modules.Require(ctx, h.moduleName)
	if err != nil {
		return nil, err
	}

	c := &listenerClass{module: m.Name()}
	if c.initialized, err = bindContextFunc(m, SymbolContextInitialized); err != nil {
		return nil, err
	}
	if c.destroyed, err = bindContextFunc(m, SymbolContextDestroyed); err != nil {
		return nil, err
	}

	logger.Debug("context listener adapter resolved", logger.KeyModule, c.module)
	return c, nil
}

// lazy holds a value resolved at most once. The atomic done flag publishes v
// and err to readers that skip the mutex.
//
// A resolution aborted by its context is not kept; the next caller tries
// again.
type lazy[T any] struct {
	mu   sync.Mutex
	done atomic.Bool
	v    T
	err  error
}

func (l *lazy[T]) get(ctx context.Context, resolve func(context.Context) (T, error)) (T, error) {
	if l.done.Load() {
		return l.v, l.err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done.Load() {
		return l.v, l.err
	}

	v, err := resolve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return v, err
	}
	l.v, l.err = v, err
	l.done.Store(true)
	return v, err
}
