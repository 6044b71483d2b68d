// Package policy evaluates the message admission policy with OPA.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document the policy is evaluated against.
type Input struct {
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`
	Content       string `json:"content"`
	ContentLength int    `json:"content_length"`
	MaxChars      int    `json:"max_chars"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Decision string
	Reason   string
}

// Allowed reports whether the message may be sent.
func (d Decision) Allowed() bool {
	return d.Decision != DecisionBlock
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.message_policy.result"),
		rego.Module("message_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile creates a policy engine from a rego file, or from
// DefaultPolicy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks whether a message may be sent to the assistant.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionAllow, Reason: "default"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Decision: DecisionAllow, Reason: "unexpected return type"}, nil
	}

	decision := Decision{Decision: DecisionAllow}
	if s, ok := obj["decision"].(string); ok {
		decision.Decision = s
	}
	if s, ok := obj["reason"].(string); ok {
		decision.Reason = s
	}
	return decision, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package message_policy

default decision = "allow"

default reason = ""

decision = "block" {
	input.max_chars > 0
	input.content_length > input.max_chars
}

reason = "message exceeds maximum length" {
	input.max_chars > 0
	input.content_length > input.max_chars
}

result = {"decision": decision, "reason": reason}
`
