package module

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"plugin"

	"github.com/tailrecursion/servlet-adapter/internal/logger"
)

// PluginLoader loads modules from Go plugin files (built with
// -buildmode=plugin) found under one of its search directories.
type PluginLoader struct {
	Path []string // search directories, in order
}

// NewPluginLoader returns a loader searching the given directories.
func NewPluginLoader(dirs ...string) *PluginLoader {
	return &PluginLoader{Path: dirs}
}

func (l *PluginLoader) Load(ctx context.Context, name string) (Module, error) {
	libfile, err := l.find(name)
	if err != nil {
		return nil, &LoadError{Module: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Module: name, Err: err}
	}

	logger.Debug("opening plugin", logger.KeyModule, name, "file", libfile)

	p, err := plugin.Open(libfile)
	if err != nil {
		logger.Warn("plugin.Open failed", logger.KeyModule, name, "file", libfile, logger.KeyError, err)
		return nil, &LoadError{Module: name, Err: err}
	}

	return &pluginModule{name: name, libfile: libfile, p: p}, nil
}

// find returns the first existing plugin file for name
func (l *PluginLoader) find(name string) (string, error) {
	rel := FileName(name)
	for _, dir := range l.Path {
		libfile := filepath.Join(dir, rel)
		st, err := os.Stat(libfile)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if !st.IsDir() {
			return libfile, nil
		}
	}
	return "", ErrModuleNotFound
}

type pluginModule struct {
	name    string
	libfile string
	p       *plugin.Plugin
}

func (m *pluginModule) Name() string {
	return m.name
}

func (m *pluginModule) String() string {
	return m.name + " (" + m.libfile + ")"
}

func (m *pluginModule) Lookup(symbol string) (any, error) {
	sym, err := m.p.Lookup(ExportName(symbol))
	if err != nil {
		return nil, errors.Join(ErrSymbolNotFound, err)
	}
	return sym, nil
}
