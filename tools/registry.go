package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/types"
)

// ToolContext carries the identity of the session invoking a tool.
type ToolContext struct {
	SessionID string
	AgentID   string
	ProjectID string
}

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, input json.RawMessage, tc ToolContext) (any, error)

// Definition describes one registered tool.
type Definition struct {
	Name             string
	Description      string
	InputSchema      json.RawMessage // JSON Schema; empty means any object
	RequiresApproval bool
	Execute          ToolFunc
}

// Schema is the model-facing description of a tool.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Registry is the lookup table consumed by the agent executor.
type Registry interface {
	Get(name string) (*Definition, bool)
	Validate(name string, input json.RawMessage) error
	Schemas(names []string) []Schema
}

type registeredTool struct {
	def    Definition
	schema *gojsonschema.Schema
}

// DefaultRegistry is a concurrency-safe Registry.
type DefaultRegistry struct {
	mu     sync.RWMutex
	tools  map[string]*registeredTool
	logger *zap.Logger
}

// NewDefaultRegistry creates an empty registry.
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:  make(map[string]*registeredTool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool. The input schema is compiled once here.
func (r *DefaultRegistry) Register(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Execute == nil {
		return fmt.Errorf("tool %s has no execute function", def.Name)
	}

	var compiled *gojsonschema.Schema
	if len(def.InputSchema) > 0 {
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(def.InputSchema))
		if err != nil {
			return fmt.Errorf("tool %s: invalid input schema: %w", def.Name, err)
		}
		compiled = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = &registeredTool{def: def, schema: compiled}

	r.logger.Info("tool registered",
		zap.String("name", def.Name),
		zap.Bool("requires_approval", def.RequiresApproval),
	)
	return nil
}

// MustRegister registers a tool and panics on error. Startup use only.
func (r *DefaultRegistry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition registered under name.
func (r *DefaultRegistry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	def := t.def
	return &def, true
}

// Validate checks input against the tool's JSON Schema.
func (r *DefaultRegistry) Validate(name string, input json.RawMessage) error {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return types.Errorf(types.ErrToolNotFound, "tool %s not found", name)
	}

	doc := input
	if len(strings.TrimSpace(string(doc))) == 0 {
		doc = json.RawMessage(`{}`)
	}
	if !json.Valid(doc) {
		return types.Errorf(types.ErrToolValidation, "tool %s: input is not valid JSON", name)
	}
	if t.schema == nil {
		return nil
	}

	result, err := t.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return types.Errorf(types.ErrToolValidation, "tool %s: schema validation failed", name).WithCause(err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return types.Errorf(types.ErrToolValidation, "tool %s: invalid input: %s", name, strings.Join(msgs, "; "))
}

// Schemas returns the model-facing schemas for the named tools, skipping
// unknown names. A nil slice selects every registered tool.
func (r *DefaultRegistry) Schemas(names []string) []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if names == nil {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	out := make([]Schema, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		schema := t.def.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, Schema{Name: name, Description: t.def.Description, InputSchema: schema})
	}
	return out
}

// Names lists registered tool names in sorted order.
func (r *DefaultRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
