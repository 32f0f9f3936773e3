package planstore

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
)

// Finding is one lint error or warning, carrying its stable error code.
type Finding struct {
	Code    gateerr.ErrorCode
	Message string
}

// LintResult is the linter's output. Errors is never truncated to the
// first failure; approvers see every finding at once.
type LintResult struct {
	Passed   bool
	Errors   []Finding
	Warnings []Finding
	Hash     string
}

var (
	stubMarkers = []string{"TODO", "FIXME", "XXX", "HACK", "mock", "stub", "placeholder"}
	ambiguousModals = []string{"may", "should", "might"}
	judgmentClauses = []string{"best judgment", "as appropriate"}
	codeSymbolPattern = regexp.MustCompile("`|[A-Za-z_][A-Za-z0-9_]*\\s*(=|==|!=|<=|>=|\\+=|-=)\\s*|\\(\\)|\\{\\}|=>")
)

// Lint validates plan structure, phases, path allowlist, enforceability
// and auditability. expectedHash, if non-empty, is compared against the
// recomputed hash (PLAN_HASH_MISMATCH).
func Lint(content string, expectedHash string) LintResult {
	result := LintResult{Passed: true, Hash: canon.HashBytes([]byte(content))}

	if expectedHash != "" && expectedHash != result.Hash {
		result.addError(gateerr.CodePlanHashMismatch, "recomputed hash does not match expected_hash")
	}

	p := parse(content)

	for _, section := range MandatorySections {
		if _, ok := p.Sections[section]; !ok {
			result.addError(gateerr.CodePlanMissingSection, "missing mandatory section: "+section)
		}
	}

	lintFrontMatter(&result, p.FrontMatter)
	lintPhases(&result, p.Phases)
	lintAllowlist(&result, p.AllowlistEntries)
	lintEnforceability(&result, content)
	lintAuditability(&result, p.Phases)
	lintVersion(&result, p.FrontMatter.Version)

	return result
}

func (r *LintResult) addError(code gateerr.ErrorCode, msg string) {
	r.Passed = false
	r.Errors = append(r.Errors, Finding{Code: code, Message: msg})
}

func (r *LintResult) addWarning(code gateerr.ErrorCode, msg string) {
	r.Warnings = append(r.Warnings, Finding{Code: code, Message: msg})
}

func lintFrontMatter(result *LintResult, fm FrontMatter) {
	required := []struct{ name, value string }{
		{"STATUS", fm.Status},
		{"SCOPE", fm.Scope},
		{"CREATED", fm.Created},
		{"PURPOSE", fm.Purpose},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			result.addError(gateerr.CodePlanMissingField, "front matter missing "+f.name)
		}
	}
	if fm.Status != "" && fm.Status != "APPROVED" {
		result.addError(gateerr.CodePlanNotApproved, "front matter STATUS must be APPROVED, got "+fm.Status)
	}
}

func lintPhases(result *LintResult, phases []Phase) {
	seen := map[string]bool{}
	for _, phase := range phases {
		if !phaseIDPattern.MatchString(phase.ID) {
			result.addError(gateerr.CodePlanInvalidPhaseID, "malformed phase id: "+phase.ID)
		} else if seen[phase.ID] {
			result.addError(gateerr.CodePlanInvalidPhaseID, "duplicate phase id: "+phase.ID)
		}
		seen[phase.ID] = true

		for _, field := range PhaseFields {
			if v, ok := phase.Fields[field]; !ok || strings.TrimSpace(v) == "" {
				result.addError(gateerr.CodePlanMissingField, "phase "+phase.ID+" missing field: "+field)
			}
		}
	}
	if len(phases) == 0 {
		result.addError(gateerr.CodePlanMissingField, "no phases found in Phase Definitions section")
	}
}

func lintAllowlist(result *LintResult, entries []string) {
	for _, entry := range entries {
		if strings.HasPrefix(entry, "/") {
			result.addError(gateerr.CodePlanInvalidPath, "allowlist entry is absolute: "+entry)
		}
		if strings.Contains(entry, "..") {
			result.addError(gateerr.CodePlanPathEscape, "allowlist entry contains '..': "+entry)
		}
	}
}

func lintEnforceability(result *LintResult, content string) {
	lower := strings.ToLower(content)
	for _, marker := range stubMarkers {
		if containsWord(content, marker) {
			result.addError(gateerr.CodePlanNotEnforceable, "stub marker present: "+marker)
		}
	}
	for _, modal := range ambiguousModals {
		if containsWord(lower, modal) {
			result.addError(gateerr.CodePlanNotEnforceable, "ambiguous modal verb present: "+modal)
		}
	}
	for _, clause := range judgmentClauses {
		if strings.Contains(lower, clause) {
			result.addError(gateerr.CodePlanNotEnforceable, "human-judgment clause present: "+clause)
		}
	}
}

func lintAuditability(result *LintResult, phases []Phase) {
	for _, phase := range phases {
		objective, ok := phase.Fields["Objective"]
		if !ok {
			continue
		}
		if codeSymbolPattern.MatchString(objective) {
			result.addError(gateerr.CodePlanNotAuditable, "phase "+phase.ID+" objective contains code-level symbols")
		}
	}
}

func lintVersion(result *LintResult, version string) {
	if version == "" {
		result.addError(gateerr.CodePlanMissingField, "front matter missing VERSION")
		return
	}
	if _, err := semver.NewVersion(version); err != nil {
		result.addError(gateerr.CodePlanMissingField, "VERSION is not a valid semantic version: "+version)
	}
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		pos := strings.Index(s[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx
		before := byte(' ')
		if pos > 0 {
			before = s[pos-1]
		}
		after := byte(' ')
		if pos+len(word) < len(s) {
			after = s[pos+len(word)]
		}
		if !isWordChar(before) && !isWordChar(after) {
			return true
		}
		idx = pos + len(word)
		if idx >= len(s) {
			return false
		}
	}
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}
