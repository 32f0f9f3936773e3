package policy

import "strings"

// findOccurrences scans content line by line for literal pattern
// matches, classifying each with the heuristic facts a ContextPredicate
// is evaluated against. This is deliberately a textual/syntactic scan,
// never a real parse, consistent with the core's non-goal of not
// understanding source-file semantics.
func findOccurrences(path, content, pattern string) []Occurrence {
	testFile := IsTestFile(path)
	var out []Occurrence
	for lineNo, line := range strings.Split(content, "\n") {
		col := 0
		for {
			idx := strings.Index(line[col:], pattern)
			if idx < 0 {
				break
			}
			pos := col + idx
			out = append(out, Occurrence{
				InComment:       isCommentLine(line),
				InStringLiteral: isInsideStringLiteral(line, pos),
				InTestFile:      testFile,
				Line:            lineNo + 1,
				Column:          pos + 1,
			})
			col = pos + len(pattern)
			if col >= len(line) {
				break
			}
		}
	}
	return out
}

// isInsideStringLiteral approximates whether byte offset pos in line
// falls within a single- or double-quoted run, by counting unescaped
// quote characters before pos.
func isInsideStringLiteral(line string, pos int) bool {
	inSingle, inDouble := false, false
	for i := 0; i < pos && i < len(line); i++ {
		switch line[i] {
		case '\'':
			if !inDouble && (i == 0 || line[i-1] != '\\') {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle && (i == 0 || line[i-1] != '\\') {
				inDouble = !inDouble
			}
		}
	}
	return inSingle || inDouble
}

// IsTestFile reports whether path names a test-gated module;
// findOccurrences calls it to populate Occurrence.InTestFile for the path
// it scans.
func IsTestFile(path string) bool {
	return strings.Contains(path, "_test.") || strings.Contains(path, "/tests/") || strings.Contains(path, "/test/")
}
