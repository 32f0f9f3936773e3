package policy

import (
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
)

// Violation is one policy-engine refusal reason.
type Violation struct {
	Code    gateerr.ErrorCode
	Message string
}

// Input is the full context the policy engine's ordered pipeline needs.
// PriorContent is nil for a newly created file.
type Input struct {
	Path            string
	ProposedContent string
	PriorContent    *string
	Plan            planstore.Parsed
	Role            string
	RoleFields      map[string]string // purpose, connected_via, failure_modes, ...
}

// RoleRequiredFields is the role-contract configuration table: required
// metadata fields per claimed role, expressed as data so additional
// roles are added without touching engine code. Keyed on
// session.RoleExecutor's string value ("EXECUTOR"), the same three-role
// vocabulary the prompt gate and write gate fix on.
var RoleRequiredFields = map[string][]string{
	"EXECUTOR": {"purpose", "connected_via", "failure_modes"},
}

// Engine runs the ordered policy pipeline. Extensions register
// additional PatternRule rows (language sub-policies); the base ruleset
// is merged with any extensions supplied at construction.
type Engine struct {
	rules []PatternRule
}

// New returns an Engine seeded with extraRules in addition to the
// default Rust illustration ruleset.
func New(extraRules ...PatternRule) *Engine {
	rules := append([]PatternRule{}, DefaultRustRules()...)
	rules = append(rules, extraRules...)
	return &Engine{rules: rules}
}

// Evaluate runs stages 1 through 5 in order; the first failing stage
// aborts the pipeline.
func (e *Engine) Evaluate(in Input) (allowed bool, violations []Violation) {
	if vs := SyntacticStubCheck(in.Path, in.ProposedContent); len(vs) > 0 {
		return false, vs
	}

	var textual []Violation
	textual = append(textual, TextualStubScan(in.ProposedContent)...)
	textual = append(textual, e.forbiddenPatternScan(in.Path, in.ProposedContent)...)
	if len(textual) > 0 {
		return false, textual
	}

	if in.PriorContent != nil {
		if vs := CommentOutDetection(*in.PriorContent, in.ProposedContent); len(vs) > 0 {
			return false, vs
		}
	}

	if vs := PathScopeCheck(in.Path, in.Plan.AllowlistEntries); len(vs) > 0 {
		return false, vs
	}

	if vs := RoleContractCheck(in.Path, in.Role, in.RoleFields); len(vs) > 0 {
		return false, vs
	}

	return true, nil
}

func (e *Engine) forbiddenPatternScan(path, content string) []Violation {
	ext := extensionOf(path)
	var violations []Violation
	for _, rule := range e.rules {
		if rule.Extension != ext {
			continue
		}
		for _, occ := range findOccurrences(path, content, rule.Pattern) {
			if rule.Predicate != nil && !rule.Predicate.Applies(occ) {
				continue
			}
			violations = append(violations, Violation{Code: "POLICY_VIOLATION", Message: rule.Message})
		}
	}
	return violations
}
