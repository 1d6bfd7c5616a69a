package kernel

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/flowkit/kernel/kernel/bus"
)

// routerOrchestrator chooses exactly one child to run, either by walking a
// rule list or by delegating the choice to a designated agent child
// (spec.md §4.6).
type routerOrchestrator struct {
	id       string
	children []Executor
	childCfg []ExecutorConfig
	strategy RouterStrategy
	rules    []RouteRule
	routerID string
}

func newRouterOrchestrator(config ExecutorConfig, f ChildFactory) (Executor, error) {
	children, err := buildChildren(config, f)
	if err != nil {
		return nil, err
	}
	r := &routerOrchestrator{
		id:       config.ID,
		children: children,
		childCfg: config.Orchestrator.Children,
		strategy: StrategyRule,
	}
	if rc := config.Orchestrator.ModeConfig.Router; rc != nil {
		if rc.Strategy != "" {
			r.strategy = rc.Strategy
		}
		r.rules = rc.Rules
		r.routerID = rc.RouterChildID
	}
	return r, nil
}

func (r *routerOrchestrator) ID() string { return r.id }

func (r *routerOrchestrator) Execute(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error) {
	if err := ec.CheckCancelled(ctx); err != nil {
		return ExecutionResult{}, err
	}
	if len(r.children) == 0 {
		return Failed(CodeNoRoute, "router "+r.id+" has no children", false), nil
	}

	var target string
	var err error
	if r.strategy == StrategyLLM {
		target, err = r.selectByLLM(ctx, ec, input)
	} else {
		target = r.selectByRule(input, ec.Vars().ToObject())
	}
	if err != nil {
		return ExecutionResult{}, err
	}

	idx := r.indexOf(target)
	if idx < 0 {
		idx = 0
	}
	chosen := r.children[idx]

	ec.Emitter().Emit(bus.ExecutionProgress, map[string]any{
		"action":         "route",
		"selectedTarget": chosen.ID(),
	}, r.id)

	childCtx := ec.CreateChild(chosen.ID())
	emitNodeStart(ec, chosen, r.childCfg[idx].Type, ModeRouter)
	result, execErr := chosen.Execute(ctx, childCtx, input)
	if execErr != nil {
		if _, ok := execErr.(*CancellationError); ok {
			return ExecutionResult{}, execErr
		}
		result = synthesizeChildFailure(execErr)
	}
	emitNodeTerminal(ec, chosen.ID(), result)
	return result, nil
}

func (r *routerOrchestrator) indexOf(id string) int {
	for i, c := range r.children {
		if c.ID() == id {
			return i
		}
	}
	return -1
}

func (r *routerOrchestrator) selectByRule(input any, variables map[string]any) string {
	inputStr := stringifyInput(input)
	for _, rule := range r.rules {
		if evalRuleCondition(rule.Condition, inputStr, variables) {
			if r.indexOf(rule.Target) >= 0 {
				return rule.Target
			}
		}
	}
	return r.children[0].ID()
}

func evalRuleCondition(condition, input string, variables map[string]any) bool {
	switch {
	case strings.HasPrefix(condition, "contains:"):
		s := strings.TrimPrefix(condition, "contains:")
		return strings.Contains(strings.ToLower(input), strings.ToLower(s))
	case strings.HasPrefix(condition, "startsWith:"):
		s := strings.TrimPrefix(condition, "startsWith:")
		return strings.HasPrefix(input, s)
	case strings.HasPrefix(condition, "equals:"):
		s := strings.TrimPrefix(condition, "equals:")
		return input == s
	case strings.HasPrefix(condition, "regex:"):
		pattern := strings.TrimPrefix(condition, "regex:")
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return false
		}
		return re.MatchString(input)
	case strings.HasPrefix(condition, "var:"):
		name := strings.TrimPrefix(condition, "var:")
		v, ok := variables[name]
		if !ok {
			return false
		}
		return truthyValue(v)
	default:
		return false
	}
}

func truthyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

func stringifyInput(input any) string {
	if s, ok := input.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", input)
}

// selectByLLM dispatches to the designated router-agent child (spec.md §9:
// an explicit routerChildId is required rather than inferring "the only
// agent child"), feeding it the remaining children and the stringified
// input, and matches its trimmed output against child ids.
func (r *routerOrchestrator) selectByLLM(ctx context.Context, ec *ExecutionContext, input any) (string, error) {
	idx := r.indexOf(r.routerID)
	if idx < 0 {
		return r.children[0].ID(), nil
	}
	router := r.children[idx]

	var b strings.Builder
	fmt.Fprintf(&b, "Input: %s\n\nChoose one of the following destinations by id:\n", stringifyInput(input))
	for i, c := range r.children {
		if c.ID() == r.routerID {
			continue
		}
		name := r.childCfg[i].Name
		fmt.Fprintf(&b, "- %s: %s\n", c.ID(), name)
	}

	childCtx := ec.CreateChild(router.ID())
	result, err := router.Execute(ctx, childCtx, b.String())
	if err != nil {
		if _, ok := err.(*CancellationError); ok {
			return "", err
		}
		return r.children[0].ID(), nil
	}

	choice := strings.TrimSpace(stringifyInput(result.Output))
	if r.indexOf(choice) >= 0 {
		return choice, nil
	}
	return r.children[0].ID(), nil
}
