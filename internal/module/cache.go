package module

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tailrecursion/servlet-adapter/internal/logger"
	"github.com/tailrecursion/servlet-adapter/internal/metrics"
)

// Cache loads each module name at most once and hands out the same Module
// to every caller afterwards. It is safe for concurrent use.
//
// A failed load is remembered as well: repeat requests for a faulty module
// return the same error without trying again. The one exception is a load
// aborted by its context, which is not cached.
type Cache struct {
	loader  Loader
	metrics *metrics.Metrics

	entries   map[string]*entry // finished loads
	entriesmu sync.RWMutex

	loading singleflight.Group // loads in progress
}

type entry struct {
	m   Module
	err error
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMetrics records load outcomes on m.
func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

func NewCache(loader Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		loader:  loader,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Require returns the module called name, loading it first if needed.
// Requiring an already loaded module is a no-op.
//
// Concurrent first calls for the same name are all multiplexed onto one load.
// The load runs detached from any caller's cancellation; a caller whose ctx
// is done stops waiting for it, but the others still get its result.
func (c *Cache) Require(ctx context.Context, name string) (Module, error) {
	if e := c.get(name); e != nil {
		return e.m, e.err
	}
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Module: name, Err: err}
	}

	ch := c.loading.DoChan(name, func() (any, error) {
		// A load may have finished between get() above and DoChan
		if e := c.get(name); e != nil {
			return e, nil
		}

		e := c.load(context.WithoutCancel(ctx), name)
		if !errors.Is(e.err, context.Canceled) && !errors.Is(e.err, context.DeadlineExceeded) {
			c.entriesmu.Lock()
			c.entries[name] = e
			c.entriesmu.Unlock()
		}
		return e, nil
	})

	select {
	case res := <-ch:
		e := res.Val.(*entry)
		return e.m, e.err
	case <-ctx.Done():
		return nil, &LoadError{Module: name, Err: ctx.Err()}
	}
}

// Loaded reports whether name has been loaded successfully.
func (c *Cache) Loaded(name string) bool {
	e := c.get(name)
	return e != nil && e.err == nil
}

// Names returns the names of successfully loaded modules in sorted order.
func (c *Cache) Names() []string {
	c.entriesmu.RLock()
	names := make([]string, 0, len(c.entries))
	for name, e := range c.entries {
		if e.err == nil {
			names = append(names, name)
		}
	}
	c.entriesmu.RUnlock()
	sort.Strings(names)
	return names
}

func (c *Cache) get(name string) *entry {
	c.entriesmu.RLock()
	e := c.entries[name]
	c.entriesmu.RUnlock()
	return e
}

func (c *Cache) load(ctx context.Context, name string) *entry {
	logger.Info("loading module", logger.KeyModule, name)
	start := time.Now()

	m, err := c.loader.Load(ctx, name)
	if err == nil && m == nil {
		err = errors.New("loader returned no module")
	}
	if err != nil {
		var le *LoadError
		if !errors.As(err, &le) {
			err = &LoadError{Module: name, Err: err}
		}
		logger.Error("module load failed", logger.KeyModule, name, logger.KeyError, err)
		m = nil
	} else {
		logger.Info("module loaded", logger.KeyModule, name, logger.KeyDuration, logger.Duration(start))
	}

	c.metrics.ObserveModuleLoad(name, err)
	return &entry{m: m, err: err}
}
