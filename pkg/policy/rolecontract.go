package policy

import "strings"

// RoleContractCheck implements write-gate policy stage 5: the proposed
// content, for code-bearing paths, must carry the declared metadata
// fields required by the caller's claimed role. fields is the caller-
// supplied map of field name to value (e.g. from the write_file tool's
// purpose/connected_via/failure_modes arguments).
func RoleContractCheck(path, role string, fields map[string]string) []Violation {
	if !isCodeBearingPath(path) {
		return nil
	}
	required, ok := RoleRequiredFields[role]
	if !ok {
		return nil
	}
	var violations []Violation
	for _, field := range required {
		if strings.TrimSpace(fields[field]) == "" {
			violations = append(violations, Violation{
				Code:    "ROLE_CONTRACT_VIOLATION",
				Message: "role " + role + " requires declared field: " + field,
			})
		}
	}
	return violations
}

var codeExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".py": true, ".java": true,
	".rs": true, ".c": true, ".cpp": true, ".rb": true,
}

func isCodeBearingPath(path string) bool {
	return codeExtensions[extensionOf(path)]
}
