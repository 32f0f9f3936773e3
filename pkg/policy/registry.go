// Package policy implements the pluggable static-check pipeline over
// proposed file content: stub detection, forbidden-pattern scanning,
// comment-out detection, allowlist scoping, and role contracts. The
// pattern registry is data; context predicates are CEL expressions.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// Occurrence is the per-candidate-match fact set a registry entry's
// context predicate is evaluated against.
type Occurrence struct {
	InComment      bool
	InStringLiteral bool
	InTestFile     bool
	Line           int
	Column         int
}

func (o Occurrence) asCELInput() map[string]any {
	return map[string]any{
		"in_comment":        o.InComment,
		"in_string_literal":  o.InStringLiteral,
		"in_test_file":      o.InTestFile,
		"line":              int64(o.Line),
		"column":            int64(o.Column),
	}
}

var celEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("in_comment", cel.BoolType),
		cel.Variable("in_string_literal", cel.BoolType),
		cel.Variable("in_test_file", cel.BoolType),
		cel.Variable("line", cel.IntType),
		cel.Variable("column", cel.IntType),
	)
	if err != nil {
		panic(fmt.Sprintf("policy: building CEL environment: %v", err))
	}
	celEnv = env
}

// ContextPredicate is a compiled CEL expression deciding whether a given
// occurrence of a forbidden pattern is actually in-scope for rejection
// (e.g. "outside string literals, outside comments, outside test-gated
// modules"). It is data: new languages are added by adding registry rows
// carrying a predicate source string, never by editing this engine.
type ContextPredicate struct {
	source  string
	program cel.Program
}

// CompilePredicate compiles a CEL boolean expression. A predicate that
// fails to compile is a configuration error: the whole registry entry
// fails to load, rather than silently passing every occurrence.
func CompilePredicate(source string) (*ContextPredicate, error) {
	ast, issues := celEnv.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: compiling context predicate %q: %w", source, issues.Err())
	}
	prg, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: building CEL program for %q: %w", source, err)
	}
	return &ContextPredicate{source: source, program: prg}, nil
}

// Applies evaluates the predicate against occ. A predicate that errors
// at evaluation time is treated as "applies" (fail closed: the
// occurrence is rejected rather than silently waved through).
func (p *ContextPredicate) Applies(occ Occurrence) bool {
	out, _, err := p.program.Eval(occ.asCELInput())
	if err != nil {
		return true
	}
	b, ok := out.(ref.Val).Value().(bool)
	if !ok {
		return true
	}
	return b
}

// PatternRule is one row of the forbidden-pattern registry: an
// extension, a literal pattern (matched as a plain substring), a context
// predicate, and an allow-tag. The scan does not consult AllowTag: no
// occurrence is whitelisted through it.
type PatternRule struct {
	Extension string
	Pattern   string
	Predicate *ContextPredicate
	AllowTag  string
	Message   string
}

// DefaultRustRules is the Rust sub-policy: each entry rejects one
// fallible-escape-hatch idiom, outside comments/strings/test files.
// Other languages are added the same way, as rows, not engine changes.
func DefaultRustRules() []PatternRule {
	anywhereButCommentsStringsTests := mustPredicate("!in_comment && !in_string_literal && !in_test_file")
	patterns := []struct {
		pattern, message string
	}{
		{"unwrap", "Rust .unwrap() is a forbidden fallible-escape idiom"},
		{"expect", "Rust .expect() is a forbidden fallible-escape idiom"},
		{"panic!", "Rust panic! is forbidden outside test code"},
		{"unsafe {", "Rust unsafe block is forbidden"},
		{"static mut", "Rust static mut is forbidden"},
		{"todo!", "Rust todo! is a stub marker"},
		{"unimplemented!", "Rust unimplemented! is a stub marker"},
		{"Box::leak", "Rust Box::leak is forbidden"},
		{"Result<T, Box<dyn Error>>", "Rust Result<T, Box<dyn Error>> erases error types"},
	}
	var rules []PatternRule
	for _, p := range patterns {
		rules = append(rules, PatternRule{
			Extension: ".rs",
			Pattern:   p.pattern,
			Predicate: anywhereButCommentsStringsTests,
			Message:   p.message,
		})
	}
	return rules
}

func mustPredicate(source string) *ContextPredicate {
	p, err := CompilePredicate(source)
	if err != nil {
		panic(err)
	}
	return p
}
