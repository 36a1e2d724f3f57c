package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

type Choice string

const (
	ChoiceAuto Choice = "auto"
	ChoiceNone Choice = "none"
)

// Spec is the wire-level description of a tool as advertised to the agent.
type Spec struct {
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

type Parameters struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required"`
}

type Properties map[string]Property

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Handler executes a tool call. A nil result with a nil error is normalized
// to {"success": true} by Dispatch.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition couples a Spec with its local handler.
type Definition struct {
	Name        string
	Description string
	Parameters  Parameters
	Handler     Handler
}

func (d Definition) spec() Spec {
	p := d.Parameters
	if p.Type == "" {
		p.Type = "object"
	}
	if p.Properties == nil {
		p.Properties = Properties{}
	}
	if p.Required == nil {
		p.Required = []string{}
	}
	return Spec{
		Type:        "function",
		Name:        d.Name,
		Description: d.Description,
		Parameters:  p,
	}
}

// Registry maps tool names to handlers and answers every dispatch with a
// structured result. The agent expects exactly one output per call, so
// Dispatch must not panic and must not surface Go errors to its caller.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Definition
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		tools:  make(map[string]Definition),
		logger: logger,
	}
}

func (r *Registry) Register(d Definition) error {
	if d.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %q has no handler", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool %q is already registered", d.Name)
	}
	r.tools[d.Name] = d

	return nil
}

// Specs returns the wire schemas for all registered tools, sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.tools))
	for _, d := range r.tools {
		specs = append(specs, d.spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	return specs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Dispatch invokes the named handler and always returns a result payload:
// the handler's own payload, {"success": true} when it returned nothing, or
// {"error": message} for an unknown name, a handler error or a panic.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result any) {
	r.mu.RLock()
	d, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown tool requested", slog.String("name", name))
		return map[string]any{"error": fmt.Sprintf("unknown tool: %s", name)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked",
				slog.String("name", name),
				slog.Any("panic", rec),
			)
			result = map[string]any{"error": fmt.Sprintf("tool %s failed: %v", name, rec)}
		}
	}()

	res, err := d.Handler(ctx, args)
	if err != nil {
		r.logger.Debug("tool handler failed",
			slog.String("name", name),
			slog.Any("err", err),
		)
		return map[string]any{"error": err.Error()}
	}
	if res == nil {
		return map[string]any{"success": true}
	}

	return res
}
