// Package policy evaluates the tool gating policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Gating decisions returned by Evaluate.
const (
	DecisionAllow           = "allow"
	DecisionRequireApproval = "require_approval"
	DecisionBlock           = "block"
)

// Engine is the OPA gating engine consulted before every tool dispatch.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given rego module.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_gate.decision"),
		rego.Module("tool_gate.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate decides how a tool invocation is gated. Input carries tool_id,
// capability, requires_approval, provider, and the raw parameters.
// Returns one of allow, require_approval, or block.
func (e *Engine) Evaluate(ctx context.Context, input map[string]any) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The default policy always yields a decision; an empty result means
		// a custom policy without a default rule.
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("policy returned non-string decision")
}

// DefaultPolicy gates tool dispatch: descriptors flagged as requiring
// approval are deferred, and a write tool that somehow lost its approval
// flag is blocked outright rather than executed.
const DefaultPolicy = `
package tool_gate

default decision = "allow"

decision = "require_approval" {
	input.requires_approval
}

decision = "block" {
	input.capability == "write"
	not input.requires_approval
}
`
