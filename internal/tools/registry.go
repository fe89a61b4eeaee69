// Package tools defines the tool descriptors and the registry the
// orchestrator resolves invocations against.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/contextkit/orchestrator/internal/domain"
)

// Registry holds the static tool descriptors with their compiled input
// schemas. Descriptors are loaded once at construction and never mutated.
type Registry struct {
	descriptors map[string]*domain.ToolDescriptor
	schemas     map[string]*jsonschema.Schema
}

// NewRegistry compiles the input schema of every descriptor and builds the
// registry. A descriptor without an input schema accepts any parameters.
func NewRegistry(descriptors []domain.ToolDescriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[string]*domain.ToolDescriptor, len(descriptors)),
		schemas:     make(map[string]*jsonschema.Schema),
	}

	for i := range descriptors {
		d := descriptors[i]
		if _, exists := r.descriptors[d.ID]; exists {
			return nil, fmt.Errorf("duplicate tool descriptor %q", d.ID)
		}
		r.descriptors[d.ID] = &d

		if len(d.InputSchema) == 0 {
			continue
		}
		schema, err := compileSchema(d.ID, d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("compile input schema for %q: %w", d.ID, err)
		}
		r.schemas[d.ID] = schema
	}
	return r, nil
}

func compileSchema(toolID string, raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	url := toolID + ".schema.json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Resolve looks up a tool and checks it is callable for the given provider.
func (r *Registry) Resolve(toolID, provider string) (*domain.ToolDescriptor, *domain.Error) {
	d, ok := r.descriptors[toolID]
	if !ok {
		return nil, domain.NewErrorf(domain.ErrCodeToolNotFound, "tool %q is not registered", toolID)
	}
	if !d.AllowsProvider(provider) {
		return nil, domain.NewErrorf(domain.ErrCodeToolDisabled, "tool %q is not available for provider %q", toolID, provider)
	}
	return d, nil
}

// ValidateParameters checks invocation parameters against the tool's input
// schema. Tools without a schema accept anything.
func (r *Registry) ValidateParameters(toolID string, params map[string]any) *domain.Error {
	schema, ok := r.schemas[toolID]
	if !ok {
		return nil
	}
	instance := map[string]any{}
	if params != nil {
		instance = params
	}
	if err := schema.Validate(normalizeInstance(instance)); err != nil {
		return domain.WrapError(domain.ErrCodeValidation,
			fmt.Sprintf("invalid parameters for tool %q", toolID), err)
	}
	return nil
}

// normalizeInstance round-trips the parameters through JSON so the validator
// sees the same value shapes it would for a decoded request body.
func normalizeInstance(params map[string]any) any {
	raw, err := json.Marshal(params)
	if err != nil {
		return params
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return params
	}
	return instance
}

// Descriptors returns all descriptors sorted by id.
func (r *Registry) Descriptors() []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CapabilityProfile derives the capability manifest from the registry.
func (r *Registry) CapabilityProfile() domain.CapabilityProfile {
	caps := make(map[string]domain.CapabilityEntry, len(r.descriptors))
	for id := range r.descriptors {
		caps[id] = domain.CapabilityEntry{Status: domain.CapabilityEnabled}
	}
	return domain.CapabilityProfile{
		ProfileID:    "default",
		LastUpdated:  time.Now().UTC(),
		Capabilities: caps,
	}
}
