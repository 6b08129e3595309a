// 工具定义的测试构造器。
package mocks

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/BaSui01/flowagent/tools"
)

// ToolProbe 记录工具被执行的次数
type ToolProbe struct {
	calls atomic.Int64
}

// Calls 返回执行次数
func (p *ToolProbe) Calls() int { return int(p.calls.Load()) }

// StaticTool 每次返回 out
func StaticTool(name string, out any, probe *ToolProbe) tools.Definition {
	return tools.Definition{
		Name:        name,
		Description: "returns a fixed value",
		Execute: func(ctx context.Context, input json.RawMessage, tc tools.ToolContext) (any, error) {
			if probe != nil {
				probe.calls.Add(1)
			}
			return out, nil
		},
	}
}

// FailingTool 每次返回 err
func FailingTool(name string, err error, probe *ToolProbe) tools.Definition {
	return tools.Definition{
		Name: name,
		Execute: func(ctx context.Context, input json.RawMessage, tc tools.ToolContext) (any, error) {
			if probe != nil {
				probe.calls.Add(1)
			}
			return nil, err
		},
	}
}

// BlockingTool 阻塞直到 ctx 结束
func BlockingTool(name string, probe *ToolProbe) tools.Definition {
	return tools.Definition{
		Name: name,
		Execute: func(ctx context.Context, input json.RawMessage, tc tools.ToolContext) (any, error) {
			if probe != nil {
				probe.calls.Add(1)
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

// ApprovalTool 是需要审批的工具
func ApprovalTool(name string, probe *ToolProbe) tools.Definition {
	def := StaticTool(name, "sent", probe)
	def.RequiresApproval = true
	return def
}
