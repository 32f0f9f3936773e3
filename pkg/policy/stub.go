package policy

import (
	"regexp"
	"strings"
)

// stubMarkers are literal stub markers rejected in code (not comments).
var stubMarkers = []string{"TODO", "FIXME", "XXX", "HACK", "mock", "stub", "placeholder"}

var emptyFuncBodyPattern = regexp.MustCompile(`\b(func|function|fn)\b\s*\w*\s*\([^)]*\)[^{]*\{\s*\}`)
var emptyCatchPattern = regexp.MustCompile(`\bcatch\s*\([^)]*\)\s*\{\s*\}`)
var nullaryReturnOnlyPattern = regexp.MustCompile(`^\{\s*return\s*(null|nil|\[\]|\{\})?\s*;?\s*\}$`)
var funcHeaderPattern = regexp.MustCompile(`\b(func|function|fn)\b`)

// supportedExtensions lists extensions whose content this syntactic pass
// attempts to parse structurally; anything else falls through to
// textual-only checks.
var supportedExtensions = map[string]bool{
	".js": true, ".ts": true, ".go": true, ".py": true, ".java": true, ".rs": true,
}

// SyntacticStubCheck implements write-gate policy stage 1: reject empty
// function bodies, empty exception handlers, and nullary-placeholder
// returns whose sibling context is a function body with no other
// statements. Function declarations are recognised by the func,
// function and fn keywords. It is a textual heuristic, not a real
// parser: the gateway rejects on syntactic signals only and never
// interprets source semantics.
func SyntacticStubCheck(path, content string) []Violation {
	ext := extensionOf(path)
	if !supportedExtensions[ext] {
		return nil
	}

	// Comment lines are dropped first: a commented-out empty function is
	// the comment-out detector's concern, not a live stub.
	code := stripCommentLines(content)

	var violations []Violation
	if emptyFuncBodyPattern.MatchString(code) {
		violations = append(violations, Violation{Code: "POLICY_VIOLATION", Message: "empty function body"})
	}
	if emptyCatchPattern.MatchString(code) {
		violations = append(violations, Violation{Code: "POLICY_VIOLATION", Message: "empty exception handler"})
	}
	for _, m := range funcBodyBlocks(code) {
		if nullaryReturnOnlyPattern.MatchString(strings.TrimSpace(m)) {
			violations = append(violations, Violation{Code: "POLICY_VIOLATION", Message: "function body is a bare nullary-placeholder return"})
		}
	}
	return violations
}

func stripCommentLines(content string) string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if !isCommentLine(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// funcBodyBlocks extracts the brace-delimited body of each function-like
// declaration (a block opened on a line carrying func, function or fn)
// so nullaryReturnOnlyPattern can be checked against the body in
// isolation rather than matching any bare "{ return nil }" fragment
// anywhere in the file (e.g. inside a larger block).
func funcBodyBlocks(content string) []string {
	var blocks []string
	idx := 0
	for {
		start := strings.Index(content[idx:], "{")
		if start < 0 {
			break
		}
		start += idx
		depth := 1
		end := start + 1
		for end < len(content) && depth > 0 {
			switch content[end] {
			case '{':
				depth++
			case '}':
				depth--
			}
			end++
		}
		lineStart := strings.LastIndex(content[:start], "\n") + 1
		if depth == 0 && funcHeaderPattern.MatchString(content[lineStart:start]) {
			blocks = append(blocks, content[start:end])
		}
		idx = start + 1
	}
	return blocks
}

// TextualStubScan rejects literal stub markers appearing in code lines
// (not comment lines), implementing the stub-marker half of write-gate
// policy stage 2.
func TextualStubScan(content string) []Violation {
	var violations []Violation
	for _, line := range strings.Split(content, "\n") {
		if isCommentLine(line) {
			continue
		}
		for _, marker := range stubMarkers {
			if containsWord(line, marker) {
				violations = append(violations, Violation{
					Code:    "POLICY_VIOLATION",
					Message: "stub marker in code: " + marker,
				})
			}
		}
	}
	return violations
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") || strings.HasPrefix(t, "*") || strings.HasPrefix(t, "/*")
}

func extensionOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
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
