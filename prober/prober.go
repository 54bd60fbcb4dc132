// Package prober provides liveness and write-availability checks for the
// members watched by the failure detector.
package prober

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnknownAlias   = errors.New("unknown alias")
	ErrNotImplemented = errors.New("probe not implemented")
)

// Prober is implemented by every prober in this package and matches what the
// failure detector expects.
type Prober interface {
	Alive(ctx context.Context, alias string) error
	Writable(ctx context.Context, alias string) (bool, error)
}

// Funcs adapts plain functions to the Prober interface. Missing functions
// fail with ErrNotImplemented.
type Funcs struct {
	AliveFunc    func(ctx context.Context, alias string) error
	WritableFunc func(ctx context.Context, alias string) (bool, error)
}

func (f Funcs) Alive(ctx context.Context, alias string) error {
	if f.AliveFunc == nil {
		return ErrNotImplemented
	}

	return f.AliveFunc(ctx, alias)
}

func (f Funcs) Writable(ctx context.Context, alias string) (bool, error) {
	if f.WritableFunc == nil {
		return false, ErrNotImplemented
	}

	return f.WritableFunc(ctx, alias)
}

// ByAlias dispatches probes to a per-alias prober, so that members behind
// different transports can be watched by the same detector.
type ByAlias map[string]Prober

func (m ByAlias) get(alias string) (Prober, error) {
	p, ok := m[alias]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
	}

	return p, nil
}

func (m ByAlias) Alive(ctx context.Context, alias string) error {
	p, err := m.get(alias)
	if err != nil {
		return err
	}

	return p.Alive(ctx, alias)
}

func (m ByAlias) Writable(ctx context.Context, alias string) (bool, error) {
	p, err := m.get(alias)
	if err != nil {
		return false, err
	}

	return p.Writable(ctx, alias)
}
