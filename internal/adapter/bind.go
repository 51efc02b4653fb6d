package adapter

import (
	"github.com/tailrecursion/servlet-adapter/internal/module"
	"github.com/tailrecursion/servlet-adapter/servlet"
)

// The bind functions resolve one symbol and normalize the accepted shapes to
// the error-returning form. Result-less funcs never fail.

func bindInit(m module.Module) (servlet.InitFunc, error) {
	sym, err := module.Resolve(m, SymbolInit)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case servlet.InitFunc:
		return fn, nil
	case servlet.InitProc:
		return func(cfg servlet.Config) error {
			fn(cfg)
			return nil
		}, nil
	}
	return nil, module.SignatureError(m, SymbolInit, sym)
}

func bindService(m module.Module) (servlet.ServiceFunc, error) {
	sym, err := module.Resolve(m, SymbolService)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case servlet.ServiceFunc:
		return fn, nil
	case servlet.ServiceProc:
		return func(req servlet.Request, res servlet.Response) error {
			fn(req, res)
			return nil
		}, nil
	}
	return nil, module.SignatureError(m, SymbolService, sym)
}

func bindDestroy(m module.Module) (servlet.DestroyFunc, error) {
	sym, err := module.Resolve(m, SymbolDestroy)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case servlet.DestroyFunc:
		return fn, nil
	case servlet.DestroyProc:
		return func() error {
			fn()
			return nil
		}, nil
	}
	return nil, module.SignatureError(m, SymbolDestroy, sym)
}

func bindContextFunc(m module.Module, symbol string) (servlet.ContextFunc, error) {
	sym, err := module.Resolve(m, symbol)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case servlet.ContextFunc:
		return fn, nil
	case servlet.ContextProc:
		return func(ev *servlet.ContextEvent) error {
			fn(ev)
			return nil
		}, nil
	}
	return nil, module.SignatureError(m, symbol, sym)
}

// Symbols lists the symbols the adapters resolve, in lifecycle order.
var Symbols = []string{
	SymbolContextInitialized,
	SymbolInit,
	SymbolService,
	SymbolDestroy,
	SymbolContextDestroyed,
}

// CheckSymbol binds symbol from m the way the adapters would and returns the
// error that binding would fail with, or nil.
func CheckSymbol(m module.Module, symbol string) error {
	var err error
	switch symbol {
	case SymbolInit:
		_, err = bindInit(m)
	case SymbolService:
		_, err = bindService(m)
	case SymbolDestroy:
		_, err = bindDestroy(m)
	case SymbolContextInitialized, SymbolContextDestroyed:
		_, err = bindContextFunc(m, symbol)
	default:
		_, err = module.Resolve(m, symbol)
	}
	return err
}
