package module

import (
	"context"
	"errors"
)

// Chain is a Loader trying each of its loaders in order. It moves on to the
// next loader only when one reports ErrModuleNotFound; any other failure is
// returned as-is.
type Chain []Loader

func (c Chain) Load(ctx context.Context, name string) (Module, error) {
	for _, l := range c {
		m, err := l.Load(ctx, name)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrModuleNotFound) {
			return nil, err
		}
	}
	return nil, &LoadError{Module: name, Err: ErrModuleNotFound}
}
