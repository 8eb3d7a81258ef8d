package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	modules   = make(map[string]ModuleInfo)
	modulesMu sync.RWMutex
)

// RegisterModule registers a module by instantiating it to read its ModuleInfo.
// It panics if the ID is already registered, is not namespaced
// ("namespace.name") or has no New function. Intended to be called from
// init() functions.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("module ID must not be empty")
	}
	if info.ID.Namespace() == "" || info.ID.Name() == "" {
		panic(fmt.Sprintf("module %s: ID must be namespaced as namespace.name", info.ID))
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic(fmt.Sprintf("module already registered: %s", id))
	}
	modules[id] = info
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	return slices.SortedFunc(maps.Values(modules), byID)
}

// GetModulesByNamespace returns the modules of one namespace sorted by ID,
// e.g. "provider" yields provider.anthropic and provider.openai.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	var result []ModuleInfo
	for _, info := range modules {
		if info.ID.Namespace() == namespace {
			result = append(result, info)
		}
	}
	slices.SortFunc(result, byID)
	return result
}

// Namespaces returns the distinct namespaces of registered modules, sorted.
func Namespaces() []string {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	seen := make(map[string]struct{})
	for _, info := range modules {
		seen[info.ID.Namespace()] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

func byID(a, b ModuleInfo) int {
	return cmp.Compare(a.ID, b.ID)
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules = make(map[string]ModuleInfo)
}
