// Package container is a minimal HTTP servlet container. It drives the
// lifecycle of one servlet and one context listener and serves requests
// through the servlet under a URL prefix.
package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailrecursion/servlet-adapter/internal/adapter"
	"github.com/tailrecursion/servlet-adapter/internal/config"
	"github.com/tailrecursion/servlet-adapter/internal/logger"
	"github.com/tailrecursion/servlet-adapter/internal/metrics"
	"github.com/tailrecursion/servlet-adapter/servlet"
)

const requestIDHeader = "X-Request-Id"

type Container struct {
	cfg      *config.Config
	adapters *adapter.Host
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	tracer   trace.Tracer

	sctx    *servletContext
	handler http.Handler

	listener servlet.ContextListener // nil until ContextInitialized succeeded

	servlet     servlet.Servlet // nil until Init succeeded
	servletErr  error           // Init or resolution failure
	servletDone bool
	retryAt     time.Time // zero unless Init failed with a temporary UnavailableError
	servletmu   sync.Mutex

	// initmu serializes Init attempts. servletmu is only held to read or
	// publish their outcome, so health checks never wait on Init.
	initmu sync.Mutex

	// serving is read-locked by every request in flight. Stop write-locks it
	// so Destroy never overlaps Service.
	serving sync.RWMutex

	statemu sync.Mutex
	started bool
	stopped bool
}

// Option configures a Container.
type Option func(*Container)

// WithMetrics records metrics on m and serves g on the metrics path.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(c *Container) {
		c.metrics = m
		c.gatherer = g
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Container) {
		c.tracer = t
	}
}

func New(cfg *config.Config, adapters *adapter.Host, opts ...Option) *Container {
	c := &Container{
		cfg:      cfg,
		adapters: adapters,
		tracer:   otel.Tracer("github.com/tailrecursion/servlet-adapter/container"),
		sctx:     newServletContext(cfg.Context),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.handler = c.routes()
	return c
}

// Context returns the servlet context shared by the servlet and listener.
func (c *Container) Context() servlet.Context {
	return c.sctx
}

// Handler returns the HTTP handler serving the servlet, health and metrics.
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Start runs the startup half of the lifecycle: ContextInitialized on the
// listener, then, when preloading, Init on the servlet. Without preloading the
// servlet is initialized on its first request.
//
// Errors from the listener or the servlet are returned unchanged.
func (c *Container) Start(ctx context.Context) error {
	c.statemu.Lock()
	defer c.statemu.Unlock()
	if c.started {
		return errors.New("container already started")
	}
	c.started = true

	if c.cfg.Listener.Enabled {
		l, err := c.adapters.ContextListener(ctx)
		if err != nil {
			logger.Error("context listener unavailable", logger.KeyModule, c.adapters.ModuleName(), logger.KeyError, err)
			return err
		}
		err = l.ContextInitialized(&servlet.ContextEvent{Context: c.sctx})
		c.metrics.ObserveLifecycle("context-initialized", err)
		if err != nil {
			logger.Error("context initialization failed", logger.KeyModule, l.Module(), logger.KeyError, err)
			return err
		}
		c.listener = l
	}

	if c.cfg.Servlet.Enabled && c.cfg.Modules.Preload {
		if _, err := c.initServlet(ctx); err != nil {
			c.destroyContext()
			return err
		}
	}

	logger.Info("container started",
		logger.KeyModule, c.adapters.ModuleName(),
		logger.KeyServlet, c.cfg.Servlet.Name,
		"prefix", c.cfg.Server.Prefix)
	return nil
}

// initServlet resolves the servlet and calls Init. A successful or permanently
// failed Init is final and later calls return its outcome. After a temporary
// *servlet.UnavailableError, the first call past its RetryAfter tries again.
func (c *Container) initServlet(ctx context.Context) (servlet.Servlet, error) {
	if s, settled, err := c.outcome(); settled {
		return s, err
	}

	c.initmu.Lock()
	defer c.initmu.Unlock()
	if s, settled, err := c.outcome(); settled {
		return s, err
	}

	var s servlet.Servlet
	var retryAt time.Time
	a, err := c.adapters.Servlet(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		logger.Error("servlet unavailable", logger.KeyModule, c.adapters.ModuleName(), logger.KeyError, err)
	} else {
		err = a.Init(newServletConfig(c.cfg.Servlet, c.sctx))
		c.metrics.ObserveLifecycle("init", err)
		if err != nil {
			var unavailable *servlet.UnavailableError
			if errors.As(err, &unavailable) && !unavailable.Permanent() {
				retryAt = time.Now().Add(unavailable.RetryAfter)
			}
			logger.Error("servlet init failed", logger.KeyServlet, c.cfg.Servlet.Name, logger.KeyError, err)
		} else {
			logger.Info("servlet initialized", logger.KeyServlet, c.cfg.Servlet.Name)
			s = a
		}
	}

	c.servletmu.Lock()
	c.servlet, c.servletErr, c.servletDone, c.retryAt = s, err, true, retryAt
	c.servletmu.Unlock()
	return s, err
}

// outcome returns the result of the last Init. settled is false when Init has
// not run yet or a temporary failure is due for a retry.
func (c *Container) outcome() (s servlet.Servlet, settled bool, err error) {
	c.servletmu.Lock()
	defer c.servletmu.Unlock()
	if !c.servletDone {
		return nil, false, nil
	}
	if !c.retryAt.IsZero() && !time.Now().Before(c.retryAt) {
		return nil, false, nil
	}
	return c.servlet, true, c.servletErr
}

// Stop runs the shutdown half of the lifecycle: Destroy on an initialized
// servlet, then ContextDestroyed on an initialized listener. Both run even if
// the first fails. Stop is idempotent.
//
// Stop waits for requests already in Service to return. Requests arriving
// after it are answered 503.
func (c *Container) Stop() error {
	c.statemu.Lock()
	defer c.statemu.Unlock()
	if c.stopped {
		return nil
	}
	c.stopped = true

	var errs []error

	c.serving.Lock()
	c.initmu.Lock()
	c.servletmu.Lock()
	s := c.servlet
	c.servlet = nil
	c.servletErr = &servlet.UnavailableError{Message: "servlet destroyed"}
	c.servletDone = true
	c.retryAt = time.Time{}
	c.servletmu.Unlock()
	c.initmu.Unlock()
	c.serving.Unlock()

	if s != nil {
		err := s.Destroy()
		c.metrics.ObserveLifecycle("destroy", err)
		if err != nil {
			logger.Error("servlet destroy failed", logger.KeyServlet, c.cfg.Servlet.Name, logger.KeyError, err)
			errs = append(errs, err)
		}
	}

	if err := c.destroyContext(); err != nil {
		errs = append(errs, err)
	}

	logger.Info("container stopped")
	return errors.Join(errs...)
}

func (c *Container) destroyContext() error {
	l := c.listener
	if l == nil {
		return nil
	}
	c.listener = nil

	err := l.ContextDestroyed(&servlet.ContextEvent{Context: c.sctx})
	c.metrics.ObserveLifecycle("context-destroyed", err)
	if err != nil {
		logger.Error("context destroy failed", logger.KeyError, err)
	}
	return err
}

// ListenAndServe listens on the configured address and serves until ctx is
// done, then shuts down gracefully.
func (c *Container) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", c.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.cfg.Server.Addr(), err)
	}
	return c.Serve(ctx, l)
}

// Serve serves on l until ctx is done. Takes ownership of l.
// Requests still running when the shutdown timeout expires are abandoned by
// the server, not by the container: Stop waits for them.
func (c *Container) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:        c.handler,
		ReadTimeout:    c.cfg.Server.ReadTimeout,
		WriteTimeout:   c.cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	errch := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", "http://"+l.Addr().String())
		errch <- srv.Serve(l)
	}()

	select {
	case err := <-errch:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		srv.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-errch; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (c *Container) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", c.serveHealth)
	if c.cfg.Metrics.Enabled && c.gatherer != nil {
		r.Handle(c.cfg.Metrics.Path, promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	}

	if c.cfg.Servlet.Enabled {
		prefix := strings.TrimSuffix(c.cfg.Server.Prefix, "/")
		h := http.HandlerFunc(c.serveServlet)
		r.Handle(prefix+"/*", h)
		if prefix != "" {
			r.Handle(prefix, h)
		}
	}
	return r
}

func (c *Container) serveHealth(w http.ResponseWriter, r *http.Request) {
	c.servletmu.Lock()
	err := c.servletErr
	c.servletmu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "unavailable\n")
		return
	}
	fmt.Fprintf(w, "ok\n")
}

// serveServlet forwards one request to the servlet's Service.
func (c *Container) serveServlet(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get(requestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, reqID)

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx = logger.WithContext(ctx, &logger.LogContext{
		RequestID: reqID,
		Servlet:   c.cfg.Servlet.Name,
		Module:    c.adapters.ModuleName(),
		StartTime: time.Now(),
	})
	ctx, span := c.tracer.Start(ctx, "servlet.service", trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(
		attribute.String("servlet.name", c.cfg.Servlet.Name),
		attribute.String("servlet.module", c.adapters.ModuleName()),
		attribute.String("http.request.method", r.Method),
		attribute.String("url.path", r.URL.Path),
		attribute.String("request.id", reqID),
	))
	defer span.End()
	r = r.WithContext(ctx)

	c.serving.RLock()
	defer c.serving.RUnlock()

	res := newResponse(w)
	done := c.metrics.RequestStarted()
	defer func() {
		p := recover()
		if p == http.ErrAbortHandler {
			// let net/http abort the response
			done(res.Status())
			panic(p)
		}
		if p != nil {
			err := fmt.Errorf("panic in service: %v", p)
			logger.ErrorCtx(ctx, "servlet panicked", logger.KeyError, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if !res.wroteHeader {
				replyError(res, err, c.cfg.Server.DevMode)
			}
		}
		status := res.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		done(status)
		logger.DebugCtx(ctx, "served",
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.RequestURI(),
			logger.KeyStatus, status,
			logger.KeyDuration, logger.FromContext(ctx).DurationMs())
	}()

	s, err := c.initServlet(ctx)
	if err != nil {
		var unavailable *servlet.UnavailableError
		if !errors.As(err, &unavailable) {
			err = &servlet.UnavailableError{Message: err.Error()}
		}
		replyError(res, err, c.cfg.Server.DevMode)
		return
	}

	if err := s.Service(&request{r: r}, res); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorCtx(ctx, "service failed", logger.KeyError, err)
		if res.wroteHeader {
			return
		}
		replyError(res, err, c.cfg.Server.DevMode)
	}
}
