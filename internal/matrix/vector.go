package matrix

import (
	"fmt"
	"sort"
)

// Vector is an ordered keyed series such as ECI, PCI or COI.
type Vector struct {
	Keys   []string  `json:"keys"`
	Values []float64 `json:"values"`
}

// NewVector pairs keys with values.
func NewVector(keys []string, values []float64) (Vector, error) {
	if len(keys) != len(values) {
		return Vector{}, fmt.Errorf("matrix: vector has %d keys and %d values", len(keys), len(values))
	}
	if err := checkUnique("vector", keys); err != nil {
		return Vector{}, err
	}
	return Vector{Keys: append([]string(nil), keys...), Values: append([]float64(nil), values...)}, nil
}

// VectorFromMap builds a vector sorted by key.
func VectorFromMap(m map[string]float64) Vector {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]float64, len(keys))
	for i, k := range keys {
		vals[i] = m[k]
	}
	return Vector{Keys: keys, Values: vals}
}

// Len returns the number of entries.
func (v Vector) Len() int { return len(v.Keys) }

// Get returns the value for key.
func (v Vector) Get(key string) (float64, bool) {
	for i, k := range v.Keys {
		if k == key {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Map returns the vector as a map.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.Keys))
	for i, k := range v.Keys {
		out[k] = v.Values[i]
	}
	return out
}
