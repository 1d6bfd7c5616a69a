package kernel

import (
	"context"
	"sync"

	"github.com/flowkit/kernel/kernel/bus"
)

type dagNodeState string

const (
	dagPending   dagNodeState = "pending"
	dagReady     dagNodeState = "ready"
	dagRunning   dagNodeState = "running"
	dagCompleted dagNodeState = "completed"
	dagFailed    dagNodeState = "failed"
	dagSkipped   dagNodeState = "skipped"
)

// dagNode is the runtime record the DAG orchestrator keeps per child.
type dagNode struct {
	id           string
	index        int
	state        dagNodeState
	dependencies []string
	dependents   []string
	result       ExecutionResult
}

// dagOrchestrator schedules children under dependency edges with bounded
// concurrency, cascading skip on failure (spec.md §4.8).
type dagOrchestrator struct {
	id             string
	children       []Executor
	childCfg       []ExecutorConfig
	byID           map[string]int
	edges          []DAGEdge
	maxConcurrency int
}

func newDAGOrchestrator(config ExecutorConfig, f ChildFactory) (Executor, error) {
	children, err := buildChildren(config, f)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(children))
	for i, c := range children {
		byID[c.ID()] = i
	}

	maxConcurrency := 5
	var edges []DAGEdge
	if dc := config.Orchestrator.ModeConfig.DAG; dc != nil {
		edges = dc.Edges
		if dc.MaxConcurrency > 0 {
			maxConcurrency = dc.MaxConcurrency
		}
	}

	return &dagOrchestrator{
		id:             config.ID,
		children:       children,
		childCfg:       config.Orchestrator.Children,
		byID:           byID,
		edges:          edges,
		maxConcurrency: maxConcurrency,
	}, nil
}

func (d *dagOrchestrator) ID() string { return d.id }

// build constructs the per-run node table: every edge with both endpoints
// known is wired; unknown endpoints are dropped silently. Nodes with zero
// dependencies start ready.
func (d *dagOrchestrator) build() []*dagNode {
	nodes := make([]*dagNode, len(d.children))
	for i, c := range d.children {
		nodes[i] = &dagNode{id: c.ID(), index: i, state: dagPending}
	}
	for _, e := range d.edges {
		fromIdx, fromOK := d.byID[e.From]
		toIdx, toOK := d.byID[e.To]
		if !fromOK || !toOK {
			continue
		}
		nodes[fromIdx].dependents = append(nodes[fromIdx].dependents, e.To)
		nodes[toIdx].dependencies = append(nodes[toIdx].dependencies, e.From)
	}
	for _, n := range nodes {
		if len(n.dependencies) == 0 {
			n.state = dagReady
		}
	}
	return nodes
}

// hasCycle runs a DFS with a visiting set; a back-edge means a cycle.
func (d *dagOrchestrator) hasCycle(nodes []*dagNode) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))
	byID := make(map[string]*dagNode, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}

	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case gray:
			return true
		case black:
			return false
		}
		color[id] = gray
		for _, dep := range byID[id].dependents {
			if visit(dep) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, n := range nodes {
		if color[n.id] == white {
			if visit(n.id) {
				return true
			}
		}
	}
	return false
}

func (d *dagOrchestrator) Execute(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error) {
	if len(d.children) == 0 {
		return Success([]any{}), nil
	}

	nodes := d.build()
	if d.hasCycle(nodes) {
		return Failed(CodeInvalidDAG, "DAG "+d.id+" contains a cycle", false), nil
	}

	byID := make(map[string]*dagNode, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}

	var mu sync.Mutex
	progress := make(chan struct{}, len(nodes))
	var wg sync.WaitGroup

	running := 0
	for {
		if err := ec.CheckCancelled(ctx); err != nil {
			wg.Wait()
			return ExecutionResult{}, err
		}

		mu.Lock()
		anyActive := false
		var toStart []*dagNode
		for _, n := range nodes {
			if n.state == dagRunning {
				anyActive = true
			}
		}
		for _, n := range nodes {
			if running+len(toStart) >= d.maxConcurrency {
				break
			}
			if n.state == dagReady {
				n.state = dagRunning
				toStart = append(toStart, n)
			}
		}
		if len(toStart) > 0 {
			running += len(toStart)
			anyActive = true
		}
		done := !anyActive
		mu.Unlock()

		if done {
			break
		}

		for _, n := range toStart {
			wg.Add(1)
			go func(n *dagNode) {
				defer wg.Done()
				d.runNode(ctx, ec, byID, n, input, &mu)
				mu.Lock()
				running--
				mu.Unlock()
				progress <- struct{}{}
			}(n)
		}

		if len(toStart) == 0 {
			<-progress
		}
	}
	wg.Wait()

	return d.collectResult(nodes), nil
}

// runNode computes n's input from its dependencies, executes it, stores
// its output in the id-keyed variable slot, and updates node state plus
// dependents/skip-cascade under mu.
func (d *dagOrchestrator) runNode(ctx context.Context, ec *ExecutionContext, byID map[string]*dagNode, n *dagNode, rootInput any, mu *sync.Mutex) {
	nodeInput := d.computeInput(ec, byID, n, rootInput)

	child := d.children[n.index]
	childCtx := ec.CreateChild(child.ID())
	emitNodeStart(ec, child, d.childCfg[n.index].Type, ModeDAG)

	result, err := child.Execute(ctx, childCtx, nodeInput)
	if err != nil {
		result = synthesizeChildFailure(err)
	}
	emitNodeTerminal(ec, child.ID(), result)

	ec.Vars().Root().Set(n.id, result.Output)

	mu.Lock()
	defer mu.Unlock()
	n.result = result
	if result.Status == StatusSuccess || result.Status == StatusPartial {
		n.state = dagCompleted
		for _, depID := range n.dependents {
			dep := byID[depID]
			if dep.state != dagPending {
				continue
			}
			if allCompleted(byID, dep.dependencies) {
				dep.state = dagReady
			}
		}
	} else {
		n.state = dagFailed
		skipped := d.skipCascade(byID, n)
		if skipped > 0 {
			ec.Emitter().Emit(bus.ExecutionProgress, map[string]any{
				"action": "skip_cascade",
				"count":  skipped,
			}, d.id)
		}
	}
}

func allCompleted(byID map[string]*dagNode, deps []string) bool {
	for _, id := range deps {
		if byID[id].state != dagCompleted {
			return false
		}
	}
	return true
}

// skipCascade walks the transitive closure of n's dependents, marking
// every pending node skipped (never touching terminal or running nodes),
// and returns how many nodes it skipped.
func (d *dagOrchestrator) skipCascade(byID map[string]*dagNode, n *dagNode) int {
	count := 0
	var walk func(id string)
	walk = func(id string) {
		node := byID[id]
		if node.state != dagPending {
			return
		}
		node.state = dagSkipped
		count++
		for _, depID := range node.dependents {
			walk(depID)
		}
	}
	for _, depID := range n.dependents {
		walk(depID)
	}
	return count
}

// computeInput implements the propagation rule: roots get the
// orchestrator's input, single-dependency nodes get that dependency's
// output, multi-dependency nodes get an id-keyed map.
func (d *dagOrchestrator) computeInput(ec *ExecutionContext, byID map[string]*dagNode, n *dagNode, rootInput any) any {
	if len(n.dependencies) == 0 {
		ec.Vars().Root().Set(n.id, rootInput)
		return rootInput
	}
	if len(n.dependencies) == 1 {
		dep := byID[n.dependencies[0]]
		return dep.result.Output
	}
	m := make(map[string]any, len(n.dependencies))
	for _, depID := range n.dependencies {
		m[depID] = byID[depID].result.Output
	}
	return m
}

func (d *dagOrchestrator) collectResult(nodes []*dagNode) ExecutionResult {
	var sinks []any
	completed, failed, skipped := 0, 0, 0
	for _, n := range nodes {
		switch n.state {
		case dagCompleted:
			completed++
		case dagFailed:
			failed++
		case dagSkipped:
			skipped++
		}
		if len(n.dependents) == 0 {
			sinks = append(sinks, n.result.Output)
		}
	}

	status := StatusSuccess
	if failed > 0 {
		status = StatusPartial
	}

	var output any = sinks
	if len(sinks) == 1 {
		output = sinks[0]
	}

	return ExecutionResult{
		Status:  status,
		Output:  output,
		Control: EndDirective(),
		Metadata: &Metadata{
			Completed: completed,
			Failed:    failed,
			Skipped:   skipped,
		},
	}
}
