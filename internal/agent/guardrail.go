package agent

import (
	"context"

	"github.com/loomrun/loom/pkg/models"
)

// AutonomyLevel shapes how the guardrail responds to a tool call, from
// requiring sign-off on everything (Manual) to never escalating
// (FullAuto).
type AutonomyLevel int

const (
	// AutonomyManual escalates every tool call regardless of risk.
	AutonomyManual AutonomyLevel = iota
	// AutonomyAssisted escalates mutating calls or calls at/above the risk threshold.
	AutonomyAssisted
	// AutonomySupervised escalates only calls at/above the risk threshold.
	AutonomySupervised
	// AutonomyAutonomous never escalates but still honors the denylist.
	AutonomyAutonomous
	// AutonomyFullAuto ignores both the denylist and the allowlist restriction.
	AutonomyFullAuto
)

// DefaultApprovalThreshold is the risk level (0..10) at which Assisted and
// Supervised autonomy escalate a tool call for operator sign-off.
const DefaultApprovalThreshold = 7

// GuardrailVerdict is the outcome of evaluating a tool call against policy.
type GuardrailVerdict string

const (
	// GuardrailApprove allows the tool call to proceed immediately.
	GuardrailApprove GuardrailVerdict = "approve"
	// GuardrailDeny blocks the tool call; a synthetic DENIED result is returned.
	GuardrailDeny GuardrailVerdict = "deny"
	// GuardrailEscalate routes the tool call through the approval gate.
	GuardrailEscalate GuardrailVerdict = "escalate"
)

// RiskAware is an optional interface a Tool may implement to declare its
// mutation and risk characteristics. Tools that do not implement it are
// treated as non-mutating, risk level 0.
type RiskAware interface {
	IsMutating() bool
	RiskLevel() int // 0..10
}

// Guardrail evaluates (tool_def, tool_call, autonomy_level) into an
// Approve/Deny/Escalate verdict per the autonomy table:
//
//	level        deny-if-denylisted  deny-if-not-allowlisted  escalate-if
//	Manual            yes                    yes               always
//	Assisted          yes                    yes               mutating OR risk>=threshold
//	Supervised        yes                    yes               risk>=threshold
//	Autonomous        yes                    no                never
//	FullAuto          no                     no                never
//
// Guardrail reuses an ApprovalChecker's allow/deny lists for membership
// tests; it does not duplicate pattern matching.
type Guardrail struct {
	Checker           *ApprovalChecker
	Autonomy          AutonomyLevel
	ApprovalThreshold int // defaults to DefaultApprovalThreshold when <= 0
}

// NewGuardrail creates a Guardrail backed by the given approval checker.
func NewGuardrail(checker *ApprovalChecker, autonomy AutonomyLevel) *Guardrail {
	return &Guardrail{Checker: checker, Autonomy: autonomy, ApprovalThreshold: DefaultApprovalThreshold}
}

// Evaluate decides the verdict for one tool call. isMutating/riskLevel
// describe the tool being called (see RiskAware); callers without a
// RiskAware tool should pass false/0.
func (g *Guardrail) Evaluate(ctx context.Context, agentID string, tc models.ToolCall, isMutating bool, riskLevel int) (GuardrailVerdict, string) {
	threshold := g.ApprovalThreshold
	if threshold <= 0 {
		threshold = DefaultApprovalThreshold
	}

	policy := g.Checker.PolicyFor(agentID)

	if g.Autonomy != AutonomyFullAuto && matchesPattern(policy.Denylist, tc.Name) {
		return GuardrailDeny, "tool in denylist"
	}

	if g.Autonomy < AutonomyAutonomous && len(policy.Allowlist) > 0 && !matchesPattern(policy.Allowlist, tc.Name) {
		return GuardrailDeny, "tool not in allowlist"
	}

	risky := riskLevel >= threshold

	switch g.Autonomy {
	case AutonomyManual:
		return GuardrailEscalate, "manual autonomy requires sign-off"
	case AutonomyAssisted:
		if isMutating || risky {
			return GuardrailEscalate, "mutating or high-risk tool call"
		}
	case AutonomySupervised:
		if risky {
			return GuardrailEscalate, "risk at or above approval threshold"
		}
	case AutonomyAutonomous, AutonomyFullAuto:
		// never escalates
	}

	return GuardrailApprove, "autonomy policy permits"
}

// ClassifyTool extracts the mutation/risk characteristics of a registered
// tool, defaulting to non-mutating/risk-0 when the tool doesn't implement
// RiskAware.
func ClassifyTool(tool Tool) (isMutating bool, riskLevel int) {
	if tool == nil {
		return false, 0
	}
	if ra, ok := tool.(RiskAware); ok {
		return ra.IsMutating(), ra.RiskLevel()
	}
	return false, 0
}
