package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a backend from shared configuration.
type Factory func(cfg Config) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register installs a factory under name. Backend packages register
// themselves from init; a duplicate name panics, since it is a wiring bug.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("backend: factory %q registered twice", name))
	}

	factories[name] = f
}

// New constructs the named backend.
func New(name string, cfg Config) (Backend, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("backend: unknown backend %q (registered: %v)", name, Registered())
	}

	return f(cfg)
}

// Registered returns the registered backend names in sorted order.
func Registered() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}
