// Package policy wraps the external Policy Evaluator behind one uniform
// contract used identically at the request, scope, approval, and usage
// checkpoints. The Manager never branches on checkpoint; only the resolved
// policy identifier and the input differ.
package policy

import (
	"context"
	"fmt"
	"log/slog"

	id "keystone/pkg/domain"
)

// Evaluator is the external policy decision component.
type Evaluator interface {
	Evaluate(ctx context.Context, policyID string, input map[string]any) (Decision, error)
}

// Decision is the evaluator's verdict. Conditions are copied verbatim into
// approval audit metadata; the elevation core interprets only the small
// recognized subset in conditions.go.
type Decision struct {
	Allowed    bool
	Reasons    []string
	Conditions map[string]any
}

// Checkpoint names one of the four evaluation points in the elevation
// pipeline.
type Checkpoint string

const (
	CheckpointRequest  Checkpoint = "request"
	CheckpointScope    Checkpoint = "scope"
	CheckpointApproval Checkpoint = "approval"
	CheckpointUsage    Checkpoint = "usage"
)

// Routes maps checkpoints to per-market policy identifiers with a global
// fallback, so unconfigured markets are still vetted.
type Routes struct {
	// ByMarket[checkpoint][market] → policy identifier.
	ByMarket map[Checkpoint]map[id.Market]string
	// Global[checkpoint] → fallback policy identifier.
	Global map[Checkpoint]string
}

// Resolve returns the policy identifier for a checkpoint in a market,
// falling back to the global identifier, then to a conventional default so
// a misconfigured table still routes somewhere deterministic.
func (r Routes) Resolve(cp Checkpoint, market id.Market) string {
	if markets, ok := r.ByMarket[cp]; ok {
		if policyID, ok := markets[market]; ok {
			return policyID
		}
	}
	if policyID, ok := r.Global[cp]; ok {
		return policyID
	}
	return "elevation/" + string(cp)
}

// Gate evaluates elevation policy at a checkpoint. A single enforcement
// switch turns the whole gate into allow-all for environments that vet
// elsewhere.
type Gate struct {
	evaluator Evaluator
	routes    Routes
	enforce   bool
	logger    *slog.Logger
}

// NewGate constructs a policy gate.
func NewGate(evaluator Evaluator, routes Routes, enforce bool, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{evaluator: evaluator, routes: routes, enforce: enforce, logger: logger}
}

// Enforcing reports whether policy evaluation is enabled.
func (g *Gate) Enforcing() bool { return g.enforce }

// Evaluate resolves the market-specific policy identifier for the checkpoint
// and runs the evaluator. When enforcement is disabled it returns an
// unconditional allow without calling out.
func (g *Gate) Evaluate(ctx context.Context, cp Checkpoint, market id.Market, input map[string]any) (Decision, error) {
	if !g.enforce {
		return Decision{Allowed: true}, nil
	}

	policyID := g.routes.Resolve(cp, market)
	decision, err := g.evaluator.Evaluate(ctx, policyID, input)
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate policy %q: %w", policyID, err)
	}

	if !decision.Allowed {
		g.logger.InfoContext(ctx, "policy denied",
			"checkpoint", cp,
			"policy_id", policyID,
			"market", market,
			"reasons", decision.Reasons,
		)
	}
	return decision, nil
}
