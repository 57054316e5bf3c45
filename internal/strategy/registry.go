// Package strategy hosts the pluggable trading strategies. A strategy is
// constructed against a running engine, binds to whichever signals it
// cares about during construction, and issues orders through the engine's
// command surface. Strategies are selected by name from a process-wide
// registry; swapping one means editing the configuration and restarting.
package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/5l1v3r1/goxtool/internal/engine"
)

// Strategy is the contract every strategy fulfills. OnKey receives
// single-letter commands from the operator; OnBeforeUnload fires right
// before the strategy is discarded so it can flatten its state.
type Strategy interface {
	OnKey(key rune)
	OnBeforeUnload()
}

// Factory builds a named strategy bound to an engine.
type Factory func(eng *engine.Engine, logger *slog.Logger) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a strategy constructible under name. Registering a name
// twice panics; that is a wiring bug, not a runtime condition.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("strategy: Register called twice for " + name)
	}
	registry[name] = factory
}

// New builds the strategy registered under name. An empty name selects
// the built-in observer.
func New(name string, eng *engine.Engine, logger *slog.Logger) (Strategy, error) {
	if name == "" {
		name = "observer"
	}
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q, registered: %v", name, Names())
	}
	return factory(eng, logger)
}

// Names lists the registered strategies, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
