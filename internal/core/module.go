package core

// ModuleID identifies a module, namespaced with dots
// (e.g. "memory.sqlite", "provider.anthropic").
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := range len(id) {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return ""
}

// Name returns the part of the ID after the last dot.
func (id ModuleID) Name() string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '.' {
			return string(id[i+1:])
		}
	}
	return string(id)
}

// ModuleInfo describes a registrable module.
type ModuleInfo struct {
	// ID is the unique, namespaced module identifier.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is implemented by every mnemo module.
type Module interface {
	ModuleInfo() ModuleInfo
}
