package kernel

import "sync"

// AtomicCreator builds one atomic executor from its config. f is the
// owning Factory, passed through so the rare atomic executor that needs to
// build a nested helper executor (none do today) has the same access a
// composite creator does.
type AtomicCreator func(config ExecutorConfig, f ChildFactory) (Executor, error)

// OrchestratorCreator builds one composite executor from its config. f is
// the factory the orchestrator uses to instantiate its children — a
// non-owning reference, per spec.md §9's note on avoiding shared-ownership
// cycles between factory and orchestrator.
type OrchestratorCreator func(config ExecutorConfig, f ChildFactory) (Executor, error)

// Factory maps ExecutorConfig records to Executor instances. It holds two
// creator maps (atomic types, orchestrator modes) and caches instances by
// config id so repeated Create calls for the same id within one registry
// return the same instance.
type Factory struct {
	mu sync.RWMutex

	atomic       map[ExecutorType]AtomicCreator
	orchestrator map[OrchestratorMode]OrchestratorCreator
	cache        map[string]Executor
}

// NewFactory returns a Factory with the five built-in orchestrator modes
// and the script executor registered. The agent/http/tool executor types
// live in kernel/atomic, which imports Factory, so they cannot self-register here
// without a cycle; call their RegisterAll(f) from the composition root
// (see kernel/atomic.RegisterAll) before the first Create.
func NewFactory() *Factory {
	f := &Factory{
		atomic:       make(map[ExecutorType]AtomicCreator),
		orchestrator: make(map[OrchestratorMode]OrchestratorCreator),
		cache:        make(map[string]Executor),
	}
	registerBuiltinOrchestrators(f)
	registerScriptExecutor(f)
	return f
}

// RegisterAtomic adds or replaces the creator for an atomic executor type.
func (f *Factory) RegisterAtomic(t ExecutorType, creator AtomicCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.atomic[t] = creator
}

// RegisterOrchestrator adds or replaces the creator for an orchestrator
// mode.
func (f *Factory) RegisterOrchestrator(mode OrchestratorMode, creator OrchestratorCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orchestrator[mode] = creator
}

// Supports reports whether t (interpreted as an ExecutorType) has a
// registered creator. Composite dispatch is checked via SupportsMode.
func (f *Factory) Supports(t ExecutorType) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.atomic[t]
	return ok
}

// SupportsMode reports whether mode has a registered orchestrator creator.
func (f *Factory) SupportsMode(mode OrchestratorMode) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.orchestrator[mode]
	return ok
}

// ClearCache drops every cached instance. Registered creators are
// untouched.
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]Executor)
}

// Create instantiates (or returns the cached instance for) config. A
// composite config (Type == TypeComposite) dispatches on
// config.Orchestrator.Mode; any other Type dispatches on Type itself. An
// unrecognized type or mode is a fatal ConfigError raised before any
// execution starts.
func (f *Factory) Create(config ExecutorConfig) (Executor, error) {
	f.mu.RLock()
	if cached, ok := f.cache[config.ID]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	var (
		exec Executor
		err  error
	)
	if config.Type == TypeComposite {
		if config.Orchestrator == nil {
			return nil, &ConfigError{Code: CodeUnknownMode, Message: "composite config " + config.ID + " has no orchestrator block"}
		}
		f.mu.RLock()
		creator, ok := f.orchestrator[config.Orchestrator.Mode]
		f.mu.RUnlock()
		if !ok {
			return nil, &ConfigError{Code: CodeUnknownMode, Message: "unknown orchestrator mode: " + string(config.Orchestrator.Mode)}
		}
		exec, err = creator(config, f)
	} else {
		f.mu.RLock()
		creator, ok := f.atomic[config.Type]
		f.mu.RUnlock()
		if !ok {
			return nil, &ConfigError{Code: CodeUnknownType, Message: "unknown executor type: " + string(config.Type)}
		}
		exec, err = creator(config, f)
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[config.ID] = exec
	f.mu.Unlock()
	return exec, nil
}
