package config

import (
	"maps"
	"slices"
)

// Resolve returns the configured module IDs in load order. IDs are sorted,
// so storage modules in the "memory" namespace load before the "provider"
// modules and the order is stable across runs.
func Resolve(cfg *Config) []string {
	return slices.Sorted(maps.Keys(cfg.Modules))
}
