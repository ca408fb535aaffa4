// Package strategy defines the Strategy interface for signal-generating
// trading strategies and provides a Registry of named strategy factories.
package strategy

import (
	"fmt"
	"sort"

	"traderbot/internal/domain"
)

// Param is one named strategy parameter. Params are reported as an ordered
// slice so serialized parameter sets are stable.
type Param struct {
	Key   string
	Value int
}

// Strategy is the interface that all trading strategies must implement.
// Implementations are deterministic and causal: the signal at index i
// depends only on bars[0..i].
type Strategy interface {
	// GenerateSignals returns a binary regime series aligned to bars:
	// 1 for long, 0 for flat, one value per bar.
	GenerateSignals(bars []domain.Bar) []int

	// Name returns the unique identifier for this strategy.
	Name() string

	// Params returns the strategy's parameters in a stable order.
	Params() []Param
}

// Factory constructs a strategy from a parameter map. Invalid parameter
// combinations return an error instead of a strategy, so parameter-search
// trials can treat them as ordinary failed trials.
type Factory func(params map[string]int) (Strategy, error)

// Registry holds a named collection of strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Create builds a strategy by name with the given parameters.
func (r *Registry) Create(name string, params map[string]int) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return f(params)
}

// Has reports whether a factory is registered under the given name.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamsToMap converts an ordered parameter slice back into a map, the form
// accepted by factories.
func ParamsToMap(params []Param) map[string]int {
	m := make(map[string]int, len(params))
	for _, p := range params {
		m[p.Key] = p.Value
	}
	return m
}
