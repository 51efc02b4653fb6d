package container_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tailrecursion/servlet-adapter/internal/adapter"
	"github.com/tailrecursion/servlet-adapter/internal/config"
	"github.com/tailrecursion/servlet-adapter/internal/container"
	"github.com/tailrecursion/servlet-adapter/internal/metrics"
	"github.com/tailrecursion/servlet-adapter/internal/module"
	"github.com/tailrecursion/servlet-adapter/servlet"
)

// testModule is an implementation module whose callables record the order of
// lifecycle events and can be made to fail.
type testModule struct {
	mu     sync.Mutex
	events []string

	cfg        servlet.Config
	initEvent  *servlet.ContextEvent
	initErr    error
	serviceErr error
	destroyErr error
	panicValue any

	onInit    func() // runs inside init when set
	onService func() // runs inside service when set
}

func (m *testModule) record(ev string) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *testModule) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *testModule) symbols() module.Symbols {
	return module.Symbols{
		"init": func(cfg servlet.Config) error {
			m.record("init")
			m.cfg = cfg
			if m.onInit != nil {
				m.onInit()
			}
			return m.initErr
		},
		"service": func(req servlet.Request, res servlet.Response) error {
			m.record("service")
			if m.onService != nil {
				m.onService()
			}
			if m.panicValue != nil {
				panic(m.panicValue)
			}
			if m.serviceErr != nil {
				return m.serviceErr
			}
			res.Header().Set("Content-Type", "text/plain")
			res.WriteString("hello " + req.URL().Path)
			return nil
		},
		"destroy": func() error {
			m.record("destroy")
			return m.destroyErr
		},
		"context-initialized": func(ev *servlet.ContextEvent) error {
			m.record("context-initialized")
			m.initEvent = ev
			ev.ServletContext().SetAttribute("started", true)
			return nil
		},
		"context-destroyed": func(ev *servlet.ContextEvent) error {
			m.record("context-destroyed")
			return nil
		},
	}
}

type ContainerTestSuite struct {
	suite.Suite

	mod     *testModule
	cfg     *config.Config
	metrics *metrics.Metrics
	reg     *prometheus.Registry
}

func (s *ContainerTestSuite) SetupTest() {
	s.mod = &testModule{}
	s.cfg = config.Default()
	s.cfg.Server.Prefix = "/app"
	s.cfg.Servlet.Name = "impl"
	s.cfg.Servlet.InitParams = map[string]string{"greeting": "hello"}
	s.cfg.Context.Path = "/ctx"
	s.cfg.Modules.Preload = true
	s.reg = prometheus.NewRegistry()
	s.metrics = metrics.New(s.reg)
}

func (s *ContainerTestSuite) newContainer() *container.Container {
	r := module.NewRegistry()
	r.MustRegister(adapter.ModuleName, s.mod.symbols())
	host := adapter.NewHost(module.NewCache(r, module.WithMetrics(s.metrics)))
	return container.New(s.cfg, host, container.WithMetrics(s.metrics, s.reg))
}

func (s *ContainerTestSuite) get(c *container.Container, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (s *ContainerTestSuite) TestStartInitializesContextThenServlet() {
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	s.Equal([]string{"context-initialized", "init"}, s.mod.Events())
	s.Same(c.Context(), s.mod.initEvent.ServletContext())
	s.Equal(true, c.Context().Attribute("started"))
	s.Equal("/ctx", c.Context().ContextPath())

	s.Require().NotNil(s.mod.cfg)
	s.Equal("impl", s.mod.cfg.ServletName())
	s.Equal("hello", s.mod.cfg.InitParameter("greeting"))
	s.Equal([]string{"greeting"}, s.mod.cfg.InitParameterNames())
	s.Same(c.Context(), s.mod.cfg.ServletContext())

	s.Error(c.Start(context.Background()))
}

func (s *ContainerTestSuite) TestServeForwardsToService() {
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/app/greet")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("hello /app/greet", w.Body.String())
	s.NotEmpty(w.Header().Get("X-Request-Id"))

	w = s.get(c, "/app")
	s.Equal(http.StatusOK, w.Code)

	w = s.get(c, "/elsewhere")
	s.Equal(http.StatusNotFound, w.Code)

	s.Equal(2.0, testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues("200")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ModuleLoads.WithLabelValues(adapter.ModuleName, "success")))
}

func (s *ContainerTestSuite) TestRequestIDIsKept() {
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/app/", nil)
	req.Header.Set("X-Request-Id", "abc")
	c.Handler().ServeHTTP(w, req)
	s.Equal("abc", w.Header().Get("X-Request-Id"))
}

func (s *ContainerTestSuite) TestServiceErrorIsReplied() {
	s.mod.serviceErr = servlet.Errorf("malformed request")
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/app/x")
	s.Equal(http.StatusInternalServerError, w.Code)
	s.NotContains(w.Body.String(), "malformed request")

	s.Equal(1.0, testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues("500")))
}

func (s *ContainerTestSuite) TestServiceErrorInDevMode() {
	s.cfg.Server.DevMode = true
	s.mod.serviceErr = servlet.Errorf("malformed <request>")
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/app/x")
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Contains(w.Body.String(), "malformed &lt;request&gt;")
}

func (s *ContainerTestSuite) TestUnavailableFromService() {
	s.mod.serviceErr = &servlet.UnavailableError{Message: "warming up", RetryAfter: 5 * time.Second}
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/app/x")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal("5", w.Header().Get("Retry-After"))
}

func (s *ContainerTestSuite) TestPanicIsReplied() {
	s.mod.panicValue = "boom"
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/app/x")
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues("500")))
}

func (s *ContainerTestSuite) TestAbortHandlerPanicIsPropagated() {
	s.mod.panicValue = http.ErrAbortHandler
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	s.PanicsWithValue(http.ErrAbortHandler, func() { s.get(c, "/app/x") })
	s.Equal(0.0, testutil.ToFloat64(s.metrics.InFlight))
}

func (s *ContainerTestSuite) TestInitFailureAbortsStart() {
	initErr := &servlet.UnavailableError{Message: "bad config"}
	s.mod.initErr = initErr
	c := s.newContainer()

	err := c.Start(context.Background())
	s.Same(initErr, err)
	s.Equal([]string{"context-initialized", "init", "context-destroyed"}, s.mod.Events())

	// destroy is never called for a servlet that failed init
	s.NoError(c.Stop())
	s.Equal([]string{"context-initialized", "init", "context-destroyed"}, s.mod.Events())
}

func (s *ContainerTestSuite) TestLazyInitOnFirstRequest() {
	s.cfg.Modules.Preload = false
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))
	s.Equal([]string{"context-initialized"}, s.mod.Events())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/app/", nil))
		}()
	}
	wg.Wait()

	inits := 0
	for _, ev := range s.mod.Events() {
		if ev == "init" {
			inits++
		}
	}
	s.Equal(1, inits)
}

func (s *ContainerTestSuite) TestLazyInitFailureMakesServletUnavailable() {
	s.cfg.Modules.Preload = false
	s.mod.initErr = errors.New("no database")
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	s.Equal(http.StatusServiceUnavailable, s.get(c, "/app/").Code)
	s.Equal(http.StatusServiceUnavailable, s.get(c, "/app/").Code)
	s.Equal(http.StatusServiceUnavailable, s.get(c, "/healthz").Code)
	s.Equal([]string{"context-initialized", "init"}, s.mod.Events())
}

func (s *ContainerTestSuite) TestLazyInitTemporaryFailureSetsRetryAfter() {
	s.cfg.Modules.Preload = false
	s.mod.initErr = &servlet.UnavailableError{Message: "cache cold", RetryAfter: 30 * time.Second}
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	for i := 0; i < 2; i++ {
		w := s.get(c, "/app/")
		s.Equal(http.StatusServiceUnavailable, w.Code)
		s.Equal("30", w.Header().Get("Retry-After"))
	}
	// still inside the retry period
	s.Equal([]string{"context-initialized", "init"}, s.mod.Events())
}

func (s *ContainerTestSuite) TestLazyInitIsRetriedAfterTemporaryFailure() {
	s.cfg.Modules.Preload = false
	s.mod.initErr = &servlet.UnavailableError{Message: "cache cold", RetryAfter: 20 * time.Millisecond}
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/app/")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal("1", w.Header().Get("Retry-After"))
	s.Equal(http.StatusServiceUnavailable, s.get(c, "/healthz").Code)

	s.mod.initErr = nil
	time.Sleep(50 * time.Millisecond)

	w = s.get(c, "/app/")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(http.StatusOK, s.get(c, "/healthz").Code)
	s.Equal([]string{"context-initialized", "init", "init", "service"}, s.mod.Events())

	s.NoError(c.Stop())
	s.Equal([]string{"context-initialized", "init", "init", "service", "destroy", "context-destroyed"}, s.mod.Events())
}

func (s *ContainerTestSuite) TestHealthDoesNotWaitForInit() {
	s.cfg.Modules.Preload = false
	entered := make(chan struct{})
	release := make(chan struct{})
	s.mod.onInit = func() {
		close(entered)
		<-release
	}
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	served := make(chan int, 1)
	go func() { served <- s.get(c, "/app/").Code }()
	<-entered

	health := make(chan int, 1)
	go func() { health <- s.get(c, "/healthz").Code }()
	select {
	case code := <-health:
		s.Equal(http.StatusOK, code)
	case <-time.After(2 * time.Second):
		s.Fail("health check waited for Init")
	}

	close(release)
	s.Equal(http.StatusOK, <-served)
}

func (s *ContainerTestSuite) TestStopWaitsForServiceInFlight() {
	entered := make(chan struct{})
	release := make(chan struct{})
	s.mod.onService = func() {
		close(entered)
		<-release
	}
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	served := make(chan int, 1)
	go func() { served <- s.get(c, "/app/").Code }()
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop() }()
	select {
	case <-stopped:
		s.Fail("Stop returned while Service was running")
	case <-time.After(50 * time.Millisecond):
	}
	s.NotContains(s.mod.Events(), "destroy")

	close(release)
	s.Equal(http.StatusOK, <-served)
	select {
	case err := <-stopped:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("Stop did not return after Service finished")
	}
	s.Equal([]string{"context-initialized", "init", "service", "destroy", "context-destroyed"}, s.mod.Events())
}

func (s *ContainerTestSuite) TestStopDestroysInReverseOrder() {
	s.mod.destroyErr = errors.New("leaked handle")
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	err := c.Stop()
	s.ErrorIs(err, s.mod.destroyErr)
	s.Equal([]string{"context-initialized", "init", "destroy", "context-destroyed"}, s.mod.Events())

	s.NoError(c.Stop())
	s.Len(s.mod.Events(), 4)

	s.Equal(http.StatusServiceUnavailable, s.get(c, "/app/").Code)
}

func (s *ContainerTestSuite) TestModuleMissing() {
	host := adapter.NewHost(module.NewCache(module.NewRegistry()))
	c := container.New(s.cfg, host)

	err := c.Start(context.Background())
	s.ErrorIs(err, module.ErrModuleNotFound)
}

func (s *ContainerTestSuite) TestListenerDisabled() {
	s.cfg.Listener.Enabled = false
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))
	s.Require().NoError(c.Stop())
	s.Equal([]string{"init", "destroy"}, s.mod.Events())
}

func (s *ContainerTestSuite) TestHealthAndMetrics() {
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/healthz")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ok\n", w.Body.String())

	s.get(c, "/app/")
	w = s.get(c, "/metrics")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "servlet_adapter_requests_total")
	s.Contains(w.Body.String(), "servlet_adapter_lifecycle_calls_total")
}

func (s *ContainerTestSuite) TestServeUntilCancelled() {
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	errch := make(chan error, 1)
	go func() { errch <- c.Serve(ctx, l) }()

	res, err := http.Get("http://" + l.Addr().String() + "/app/served")
	s.Require().NoError(err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	s.Equal("hello /app/served", string(body))

	cancel()
	select {
	case err := <-errch:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("Serve did not return after cancellation")
	}
}

func (s *ContainerTestSuite) TestRootPrefix() {
	s.cfg.Server.Prefix = "/"
	c := s.newContainer()
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/")
	s.Equal(http.StatusOK, w.Code)
	s.True(strings.HasPrefix(w.Body.String(), "hello /"))

	s.Equal(http.StatusOK, s.get(c, "/healthz").Code)
	s.Equal("ok\n", s.get(c, "/healthz").Body.String())
}

func (s *ContainerTestSuite) TestServiceSpans() {
	s.mod.serviceErr = servlet.Errorf("broken")
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	r := module.NewRegistry()
	r.MustRegister(adapter.ModuleName, s.mod.symbols())
	c := container.New(s.cfg, adapter.NewHost(module.NewCache(r)), container.WithTracer(tp.Tracer("test")))
	s.Require().NoError(c.Start(context.Background()))

	w := s.get(c, "/app/traced")
	s.Equal(http.StatusInternalServerError, w.Code)

	spans := rec.Ended()
	s.Require().Len(spans, 1)
	s.Equal("servlet.service", spans[0].Name())
	s.Equal(codes.Error, spans[0].Status().Code)
	s.Equal("broken", spans[0].Status().Description)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	s.Equal("/app/traced", attrs["url.path"])
	s.Equal("500", attrs["http.response.status_code"])
	s.Equal(w.Header().Get("X-Request-Id"), attrs["request.id"])
}

func TestContainerTestSuite(t *testing.T) {
	suite.Run(t, new(ContainerTestSuite))
}
