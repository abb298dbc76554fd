package source

import (
	"fmt"
	"sort"
	"strings"
)

// Factory creates a source instance.
type Factory func() (Source, error)

// Registry maps source names to factory functions.
// It is not safe for concurrent use; registration should happen at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named source factory. Overwrites if name already exists.
// Panics if name is empty or f is nil (programmer error).
func (r *Registry) Register(name string, f Factory) {
	if name == "" {
		panic("source: Register called with empty name")
	}
	if f == nil {
		panic("source: Register called with nil factory")
	}
	r.factories[name] = f
}

// NewSource instantiates a source by name.
// Returns an error if the name is not registered or the factory fails.
func (r *Registry) NewSource(name string) (Source, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, &UnknownSourceError{
			Name:      name,
			Available: r.AvailableSources(),
		}
	}
	s, err := f()
	if err != nil {
		return nil, fmt.Errorf("source factory %q: %w", name, err)
	}
	return s, nil
}

// AvailableSources returns registered source names in sorted order.
func (r *Registry) AvailableSources() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownSourceError indicates a source name is not registered.
type UnknownSourceError struct {
	Name      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}
