// Package module loads implementation modules by name and resolves the
// callables they export.
//
// A module is identified by a dotted name such as
// "tailrecursion.clojure-adapter-servlet.impl" and exports symbols named in
// kebab-case ("context-initialized"). Go plugins can only export identifiers,
// so symbols are looked up by their export name ("ContextInitialized").
package module

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
)

// Module is a loaded unit of code whose symbols can be looked up by name.
type Module interface {
	Name() string

	// Lookup returns the value exported as symbol, or an error wrapping
	// ErrSymbolNotFound.
	Lookup(symbol string) (any, error)
}

// Loader locates and loads modules by name.
//
// Load returns an error wrapping ErrModuleNotFound when the loader has no
// module by that name. Loading the same name twice may be expensive or have
// side effects; use a Cache to load each name at most once.
type Loader interface {
	Load(ctx context.Context, name string) (Module, error)
}

// ExportName maps a kebab-case symbol name to the Go identifier a plugin
// exports it as, e.g. "context-destroyed" => "ContextDestroyed".
// Names that are already identifiers are returned with the first letter
// upper-cased.
func ExportName(symbol string) string {
	var b strings.Builder
	b.Grow(len(symbol))
	upper := true
	for _, r := range symbol {
		if r == '-' || r == '_' {
			upper = true
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		b.WriteRune(r)
	}
	return b.String()
}

// FileName maps a module name to the relative path of its plugin file,
// e.g. "tailrecursion.clojure-adapter-servlet.impl" =>
// "tailrecursion/clojure_adapter_servlet/impl.so"
func FileName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "-", "_")
	}
	return filepath.Join(parts...) + ".so"
}

// Resolve looks up symbol in m and returns its value. Pointers to funcs
// (as returned by plugin.Lookup for exported variables) are dereferenced.
// All failures are reported as *SymbolError.
func Resolve(m Module, symbol string) (any, error) {
	sym, err := m.Lookup(symbol)
	if err != nil {
		reason := "lookup failed"
		if errors.Is(err, ErrSymbolNotFound) {
			reason = "missing"
		}
		return nil, &SymbolError{Module: m.Name(), Symbol: symbol, Reason: reason, Err: err}
	}

	v := reflect.ValueOf(sym)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, &SymbolError{Module: m.Name(), Symbol: symbol, Reason: "nil pointer"}
		}
		if v.Elem().Kind() == reflect.Func {
			v = v.Elem()
			sym = v.Interface()
		}
	}
	if v.Kind() == reflect.Func && v.IsNil() {
		return nil, &SymbolError{Module: m.Name(), Symbol: symbol, Reason: "nil function"}
	}
	if !v.IsValid() {
		return nil, &SymbolError{Module: m.Name(), Symbol: symbol, Reason: "nil value"}
	}
	return sym, nil
}

// SignatureError reports that the value resolved for symbol is not a func of
// an accepted type.
func SignatureError(m Module, symbol string, sym any) *SymbolError {
	return &SymbolError{
		Module: m.Name(),
		Symbol: symbol,
		Reason: "incorrect signature " + reflect.TypeOf(sym).String(),
	}
}
