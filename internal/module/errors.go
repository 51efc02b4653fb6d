package module

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound is returned by a Loader that has no module by the
	// requested name. Chain moves on to its next loader only on this error.
	ErrModuleNotFound = errors.New("module not found")

	// ErrSymbolNotFound is returned by Module.Lookup for a missing symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// LoadError represents a failure to locate or load a module.
type LoadError struct {
	Module string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load module %s: %v", e.Module, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SymbolError represents a failure to resolve a callable in a loaded module.
type SymbolError struct {
	Module string
	Symbol string
	Reason string
	Err    error
}

func (e *SymbolError) Error() string {
	msg := fmt.Sprintf("module %s: symbol %s: %s", e.Module, e.Symbol, e.Reason)
	if e.Err != nil && !errors.Is(e.Err, ErrSymbolNotFound) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SymbolError) Unwrap() error {
	return e.Err
}
