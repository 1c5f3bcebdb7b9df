package query

import (
	"context"
	"slices"

	"github.com/pkg/errors"
)

// Keys are the input or output keys of a component.
type Keys struct {
	Required []string
	Optional []string
	// Variadic components accept any key.
	Variadic bool
}

// NewKeys returns keys where every key is required.
func NewKeys(required ...string) Keys {
	return Keys{Required: required}
}

// VariadicKeys returns keys accepting any name.
func VariadicKeys() Keys {
	return Keys{Variadic: true}
}

// All returns required and optional keys, sorted.
func (k Keys) All() []string {
	res := make([]string, 0, len(k.Required)+len(k.Optional))
	res = append(res, k.Required...)
	res = append(res, k.Optional...)
	slices.Sort(res)

	return slices.Compact(res)
}

// Has reports whether key is accepted.
func (k Keys) Has(key string) bool {
	return k.Variadic || slices.Contains(k.Required, key) || slices.Contains(k.Optional, key)
}

// Only returns the single declared key.
func (k Keys) Only() (string, bool) {
	all := k.All()
	if k.Variadic || len(all) != 1 {
		return "", false
	}

	return all[0], true
}

// Component is a pipeline module.
type Component interface {
	InputKeys() Keys
	OutputKeys() Keys
	Run(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// CheckInputs returns an error naming the first required key missing from inputs.
func CheckInputs(c Component, inputs map[string]any) error {
	for _, key := range c.InputKeys().Required {
		if _, ok := inputs[key]; !ok {
			return errors.Wrapf(ErrMissingInput, "key %q", key)
		}
	}

	return nil
}
