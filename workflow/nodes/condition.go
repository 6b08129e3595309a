package nodes

import (
	"context"
	"fmt"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/BaSui01/flowagent/workflow"
)

// DefaultConditionTimeout bounds one expression evaluation.
const DefaultConditionTimeout = time.Second

// ConditionHandler evaluates config.expression as a Lua expression in a
// sandbox. Globals: upstream (node id -> data), input (data of the single
// upstream node, or the upstream data maps merged), vars (run variables).
// The expression must yield a boolean.
type ConditionHandler struct{}

func (ConditionHandler) Execute(ctx context.Context, cfg map[string]any, in workflow.NodeInput, rc workflow.RunContext) workflow.Outcome {
	expr := configString(cfg, "expression")
	if expr == "" {
		return workflow.Failed(fmt.Errorf("condition node %s has no expression", in.NodeID))
	}

	timeout := DefaultConditionTimeout
	if ms, ok := configNumber(cfg, "timeoutMs"); ok && ms > 0 {
		timeout = time.Duration(ms * float64(time.Millisecond))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	upstream := in.UpstreamData()
	result, err := EvalCondition(ctx, expr, map[string]any{
		"upstream": upstream,
		"input":    conditionInput(upstream),
		"vars":     in.Variables,
	})
	if err != nil {
		return workflow.Failed(err)
	}
	return workflow.Completed(map[string]any{"result": result, "expression": expr})
}

// EvalCondition evaluates expr with the given globals and requires a boolean.
func EvalCondition(ctx context.Context, expr string, globals map[string]any) (bool, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)

	openSafeLibs(L)
	for name, v := range globals {
		L.SetGlobal(name, goToLua(L, v))
	}

	if err := L.DoString("return (" + expr + ")"); err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expr, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	b, ok := ret.(lua.LBool)
	if !ok {
		return false, fmt.Errorf("condition %q must evaluate to a boolean, got %s", expr, ret.Type().String())
	}
	return bool(b), nil
}

// openSafeLibs loads base, table, string and math without file, module or
// randomness access.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	for _, name := range []string{"loadfile", "dofile", "load", "loadstring", "print", "require", "module", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func conditionInput(upstream map[string]any) any {
	if len(upstream) == 1 {
		for _, v := range upstream {
			return v
		}
	}
	ids := make([]string, 0, len(upstream))
	for id := range upstream {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	merged := make(map[string]any)
	for _, id := range ids {
		if m, ok := upstream[id].(map[string]any); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
	}
	return merged
}

func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), goToLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), lua.LString(item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, goToLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, lua.LString(item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
