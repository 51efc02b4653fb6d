package module

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailrecursion/servlet-adapter/internal/metrics"
)

// countingLoader wraps a Registry and counts Load calls per name
type countingLoader struct {
	*Registry
	delay time.Duration
	loads sync.Map // name => *atomic.Int32
}

func (l *countingLoader) Load(ctx context.Context, name string) (Module, error) {
	n, _ := l.loads.LoadOrStore(name, new(atomic.Int32))
	n.(*atomic.Int32).Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	return l.Registry.Load(ctx, name)
}

func (l *countingLoader) count(name string) int32 {
	n, ok := l.loads.Load(name)
	if !ok {
		return 0
	}
	return n.(*atomic.Int32).Load()
}

func TestCacheRequireIsIdempotent(t *testing.T) {
	l := &countingLoader{Registry: NewRegistry()}
	l.MustRegister("impl", Symbols{})
	c := NewCache(l)

	m1, err := c.Require(context.Background(), "impl")
	require.NoError(t, err)
	m2, err := c.Require(context.Background(), "impl")
	require.NoError(t, err)

	assert.Same(t, m1, m2)
	assert.Equal(t, int32(1), l.count("impl"))
	assert.True(t, c.Loaded("impl"))
	assert.Equal(t, []string{"impl"}, c.Names())
}

func TestCacheConcurrentFirstUseLoadsOnce(t *testing.T) {
	l := &countingLoader{Registry: NewRegistry(), delay: 20 * time.Millisecond}
	l.MustRegister("impl", Symbols{})
	c := NewCache(l)

	const workers = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	mods := make([]Module, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			mods[i], errs[i] = c.Require(context.Background(), "impl")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, mods[0], mods[i])
	}
	assert.Equal(t, int32(1), l.count("impl"))
}

func TestCacheRemembersFailures(t *testing.T) {
	l := &countingLoader{Registry: NewRegistry()}
	c := NewCache(l)

	_, err1 := c.Require(context.Background(), "missing")
	require.Error(t, err1)
	assert.ErrorIs(t, err1, ErrModuleNotFound)

	// registering afterwards does not trigger a retry
	l.MustRegister("missing", Symbols{})
	_, err2 := c.Require(context.Background(), "missing")
	assert.Same(t, err1, err2)
	assert.Equal(t, int32(1), l.count("missing"))
	assert.False(t, c.Loaded("missing"))
	assert.Empty(t, c.Names())
}

func TestCacheWrapsForeignErrors(t *testing.T) {
	boom := errors.New("boom")
	c := NewCache(loaderFunc(func(ctx context.Context, name string) (Module, error) {
		return nil, boom
	}))

	_, err := c.Require(context.Background(), "impl")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "impl", le.Module)
	assert.ErrorIs(t, err, boom)
}

func TestCacheDoesNotRememberCancellation(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	r.MustRegister("impl", Symbols{})
	c := NewCache(loaderFunc(func(ctx context.Context, name string) (Module, error) {
		calls.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return r.Load(ctx, name)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Require(ctx, "impl")
	assert.ErrorIs(t, err, context.Canceled)

	// a caller that is already done never starts a load
	assert.Equal(t, int32(0), calls.Load())

	_, err = c.Require(context.Background(), "impl")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheLoadOutlivesCancelledCaller(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	r := NewRegistry()
	r.MustRegister("impl", Symbols{})
	c := NewCache(loaderFunc(func(ctx context.Context, name string) (Module, error) {
		calls.Add(1)
		close(entered)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return r.Load(ctx, name)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Require(ctx, "impl")
		firstErr <- err
	}()
	<-entered

	type result struct {
		m   Module
		err error
	}
	second := make(chan result, 1)
	go func() {
		m, err := c.Require(context.Background(), "impl")
		second <- result{m, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller kept waiting for the load")
	}

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "impl", res.m.Name())
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.Loaded("impl"))
}

func TestCacheMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := NewRegistry()
	r.MustRegister("impl", Symbols{})
	c := NewCache(r, WithMetrics(m))

	_, _ = c.Require(context.Background(), "impl")
	_, _ = c.Require(context.Background(), "impl")
	_, _ = c.Require(context.Background(), "other")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModuleLoads.WithLabelValues("impl", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModuleLoads.WithLabelValues("other", "error")))
}
