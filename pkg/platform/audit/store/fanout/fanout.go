// Package fanout writes each audit event to several stores.
package fanout

import (
	"context"
	"errors"

	audit "ezweb/pkg/platform/audit"
)

// Store appends to every underlying store even when one fails, and reports
// all failures together.
type Store struct {
	stores []audit.Store
}

func New(stores ...audit.Store) *Store {
	out := make([]audit.Store, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Store{stores: out}
}

func (f *Store) Append(ctx context.Context, event audit.Event) error {
	var errs []error
	for _, s := range f.stores {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
