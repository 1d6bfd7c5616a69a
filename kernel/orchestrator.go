package kernel

// buildChildren instantiates every child of config.Orchestrator in
// positional order via f, rejecting duplicate ids within this composite
// (spec.md §3's invariant that ids are unique within a composite).
func buildChildren(config ExecutorConfig, f ChildFactory) ([]Executor, error) {
	if config.Orchestrator == nil {
		return nil, &ConfigError{Code: CodeUnknownMode, Message: "composite config " + config.ID + " has no orchestrator block"}
	}
	seen := make(map[string]bool, len(config.Orchestrator.Children))
	children := make([]Executor, 0, len(config.Orchestrator.Children))
	for _, childCfg := range config.Orchestrator.Children {
		if seen[childCfg.ID] {
			return nil, &ConfigError{Code: CodeDuplicateID, Message: "duplicate child id: " + childCfg.ID}
		}
		seen[childCfg.ID] = true
		child, err := f.Create(childCfg)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// registerBuiltinOrchestrators wires the five composition disciplines the
// kernel ships with into f.
func registerBuiltinOrchestrators(f *Factory) {
	f.RegisterOrchestrator(ModeSerial, newSerialOrchestrator)
	f.RegisterOrchestrator(ModeParallel, newParallelOrchestrator)
	f.RegisterOrchestrator(ModeRouter, newRouterOrchestrator)
	f.RegisterOrchestrator(ModeLoop, newLoopOrchestrator)
	f.RegisterOrchestrator(ModeDAG, newDAGOrchestrator)
}
