package policy

import "strings"

// CommentOutDetection implements write-gate policy stage 3: detect
// lines that existed as non-comment code in prior and appear in
// proposed as comments with otherwise identical content.
func CommentOutDetection(prior, proposed string) []Violation {
	priorCode := map[string]bool{}
	for _, line := range strings.Split(prior, "\n") {
		t := strings.TrimSpace(line)
		if t != "" && !isCommentLine(line) {
			priorCode[t] = true
		}
	}

	var violations []Violation
	for _, line := range strings.Split(proposed, "\n") {
		if !isCommentLine(line) {
			continue
		}
		stripped := stripCommentMarkers(line)
		if stripped != "" && priorCode[stripped] {
			violations = append(violations, Violation{
				Code:    "COMMENT_OUT_DETECTED",
				Message: "line previously live code now appears commented out: " + stripped,
			})
		}
	}
	return violations
}

func stripCommentMarkers(line string) string {
	t := strings.TrimSpace(line)
	t = strings.TrimPrefix(t, "//")
	t = strings.TrimPrefix(t, "#")
	t = strings.TrimPrefix(t, "/*")
	t = strings.TrimSuffix(t, "*/")
	t = strings.TrimPrefix(t, "*")
	return strings.TrimSpace(t)
}
