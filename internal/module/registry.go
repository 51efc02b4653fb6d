package module

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Symbols maps symbol names to exported values. Keys may be given either in
// kebab-case ("context-initialized") or as export names ("ContextInitialized").
type Symbols map[string]any

// Registry is an in-process Loader for modules linked into the binary.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Symbols
}

// Default is the process-wide registry. Modules linked into the binary
// register themselves here from an init function.
var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Symbols)}
}

// Register adds a module. Registering a name twice is an error.
func (r *Registry) Register(name string, symbols Symbols) error {
	if name == "" {
		return fmt.Errorf("empty module name")
	}

	normalized := make(Symbols, len(symbols))
	for k, v := range symbols {
		normalized[ExportName(k)] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[name]; ok {
		return fmt.Errorf("module %s already registered", name)
	}
	r.modules[name] = normalized
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, symbols Symbols) {
	if err := r.Register(name, symbols); err != nil {
		panic(err)
	}
}

// Unregister removes a module. Modules already handed out by Load are not
// affected.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.modules, name)
	r.mu.Unlock()
}

// Names returns the registered module names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) Load(ctx context.Context, name string) (Module, error) {
	r.mu.RLock()
	symbols, ok := r.modules[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &LoadError{Module: name, Err: ErrModuleNotFound}
	}
	return &registryModule{name: name, symbols: symbols}, nil
}

// Register adds a module to the Default registry and panics on error.
func Register(name string, symbols Symbols) {
	Default.MustRegister(name, symbols)
}

// registryModule is an immutable view of a registered symbol table
type registryModule struct {
	name    string
	symbols Symbols
}

func (m *registryModule) Name() string {
	return m.name
}

func (m *registryModule) Lookup(symbol string) (any, error) {
	sym, ok := m.symbols[ExportName(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, ExportName(symbol))
	}
	return sym, nil
}
