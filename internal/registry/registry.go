// Package registry provides a statically assembled list of pass
// implementations ordered by their declared priority.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/retroenv/retrogolib/set"
)

var (
	ErrDuplicate = errors.New("implementation already registered")
	ErrEmptyName = errors.New("implementation has no name")
)

// Entry is an implementation that can be registered.
type Entry interface {
	Name() string
	// Priority orders the entries, lower values run first.
	Priority() int
}

// Registry holds implementations of a shared interface.
type Registry[T Entry] struct {
	entries []T
	names   set.Set[string]
}

// New returns a registry with the given entries registered.
func New[T Entry](entries ...T) (*Registry[T], error) {
	r := &Registry[T]{
		names: set.New[string](),
	}
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an implementation. Names must be unique.
func (r *Registry[T]) Register(entry T) error {
	name := entry.Name()
	if name == "" {
		return ErrEmptyName
	}
	if r.names.Contains(name) {
		return fmt.Errorf("%w: '%s'", ErrDuplicate, name)
	}
	r.names.Add(name)
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns the registered implementations sorted by priority.
// Entries of equal priority keep their registration order.
func (r *Registry[T]) Entries() []T {
	entries := slices.Clone(r.entries)
	slices.SortStableFunc(entries, func(a, b T) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return entries
}

// Get returns the implementation with the given name.
func (r *Registry[T]) Get(name string) (T, bool) {
	for _, e := range r.entries {
		if e.Name() == name {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of registered implementations.
func (r *Registry[T]) Len() int {
	return len(r.entries)
}
