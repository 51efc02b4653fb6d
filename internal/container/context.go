package container

import (
	"sort"
	"sync"

	"github.com/tailrecursion/servlet-adapter/internal/config"
	"github.com/tailrecursion/servlet-adapter/internal/logger"
	"github.com/tailrecursion/servlet-adapter/servlet"
)

// servletContext is the implementation of servlet.Context
type servletContext struct {
	path   string
	params map[string]string

	attrs   map[string]any
	attrsmu sync.RWMutex
}

func newServletContext(c config.ContextConfig) *servletContext {
	return &servletContext{
		path:   c.Path,
		params: copyParams(c.InitParams),
		attrs:  make(map[string]any),
	}
}

func (c *servletContext) ContextPath() string {
	return c.path
}

func (c *servletContext) InitParameter(name string) string {
	return c.params[name]
}

func (c *servletContext) InitParameterNames() []string {
	return paramNames(c.params)
}

func (c *servletContext) Attribute(name string) any {
	c.attrsmu.RLock()
	defer c.attrsmu.RUnlock()
	return c.attrs[name]
}

// SetAttribute stores v under name. Setting nil removes the attribute.
func (c *servletContext) SetAttribute(name string, v any) {
	if v == nil {
		c.RemoveAttribute(name)
		return
	}
	c.attrsmu.Lock()
	c.attrs[name] = v
	c.attrsmu.Unlock()
}

func (c *servletContext) RemoveAttribute(name string) {
	c.attrsmu.Lock()
	delete(c.attrs, name)
	c.attrsmu.Unlock()
}

func (c *servletContext) Log(msg string, args ...any) {
	logger.With("context", c.path).Info(msg, args...)
}

// servletConfig is the implementation of servlet.Config
type servletConfig struct {
	name   string
	params map[string]string
	ctx    *servletContext
}

func newServletConfig(c config.ServletConfig, ctx *servletContext) *servletConfig {
	return &servletConfig{
		name:   c.Name,
		params: copyParams(c.InitParams),
		ctx:    ctx,
	}
}

func (c *servletConfig) ServletName() string {
	return c.name
}

func (c *servletConfig) InitParameter(name string) string {
	return c.params[name]
}

func (c *servletConfig) InitParameterNames() []string {
	return paramNames(c.params)
}

func (c *servletConfig) ServletContext() servlet.Context {
	return c.ctx
}

func copyParams(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func paramNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
