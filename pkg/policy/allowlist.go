package policy

import (
	"path/filepath"
	"strings"
)

// PathScopeCheck implements write-gate policy stage 4: the path must
// match at least one entry of the plan's allowlist after normalization.
func PathScopeCheck(path string, allowlist []string) []Violation {
	normalized := filepath.ToSlash(filepath.Clean(path))
	for _, entry := range allowlist {
		if MatchAllowlistEntry(entry, normalized) {
			return nil
		}
	}
	return []Violation{{Code: "POLICY_VIOLATION", Message: "path does not match any plan allowlist entry: " + path}}
}

// MatchAllowlistEntry matches a root-relative allowlist entry against a
// normalized, root-relative path. Entries ending in "/**" match any path
// under that directory prefix (recursively); entries ending in "/*"
// match any direct child; entries with no wildcard are matched as an
// exact path or a directory prefix; anything else is matched with
// filepath.Match (single-segment glob semantics).
func MatchAllowlistEntry(entry, path string) bool {
	entry = filepath.ToSlash(strings.TrimSuffix(entry, "/"))

	if strings.HasSuffix(entry, "/**") {
		prefix := strings.TrimSuffix(entry, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	if strings.HasSuffix(entry, "/*") {
		prefix := strings.TrimSuffix(entry, "/*")
		rest := strings.TrimPrefix(path, prefix+"/")
		return path != rest && !strings.Contains(rest, "/")
	}
	if !strings.ContainsAny(entry, "*?[") {
		return path == entry || strings.HasPrefix(path, entry+"/")
	}

	matched, err := filepath.Match(entry, path)
	return err == nil && matched
}
