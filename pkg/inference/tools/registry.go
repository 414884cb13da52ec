package tools

import (
	"sort"

	"github.com/pkg/errors"
)

// Registry is an immutable name to tool mapping. It is safe for concurrent use
// without locking because nothing mutates it after construction.
type Registry struct {
	tools map[string]*ToolDefinition
	order []string
}

var ErrDuplicateTool = errors.New("duplicate tool name")

func NewRegistry(defs ...*ToolDefinition) (*Registry, error) {
	r := &Registry{tools: make(map[string]*ToolDefinition, len(defs))}
	for _, def := range defs {
		if def == nil {
			return nil, errors.New("nil tool definition")
		}
		if def.Name == "" {
			return nil, errors.New("tool name cannot be empty")
		}
		if _, ok := r.tools[def.Name]; ok {
			return nil, errors.Wrap(ErrDuplicateTool, def.Name)
		}
		d := *def
		r.tools[def.Name] = &d
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*ToolDefinition, bool) {
	if r == nil {
		return nil, false
	}
	def, ok := r.tools[name]
	return def, ok
}

// List returns the definitions in registration order.
func (r *Registry) List() []*ToolDefinition {
	if r == nil {
		return nil
	}
	ret := make([]*ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		ret = append(ret, r.tools[name])
	}
	return ret
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	ret := append([]string(nil), r.order...)
	sort.Strings(ret)
	return ret
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// RegistryBuilder collects definitions before freezing them into a Registry.
type RegistryBuilder struct {
	defs []*ToolDefinition
	err  error
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{}
}

func (b *RegistryBuilder) Register(def *ToolDefinition) *RegistryBuilder {
	b.defs = append(b.defs, def)
	return b
}

// RegisterFunc wraps fn with NewToolFromFunc. The first error is reported by Build.
func (b *RegistryBuilder) RegisterFunc(name, description string, fn interface{}, opts ...DefinitionOption) *RegistryBuilder {
	if b.err != nil {
		return b
	}
	def, err := NewToolFromFunc(name, description, fn, opts...)
	if err != nil {
		b.err = errors.Wrapf(err, "could not register tool %q", name)
		return b
	}
	return b.Register(def)
}

func (b *RegistryBuilder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	return NewRegistry(b.defs...)
}
