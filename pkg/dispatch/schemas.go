package dispatch

import "github.com/Mindburn-Labs/gatekeeper/pkg/policy"

// toolSchemas declares the per-tool input schemas as data. Tools absent
// from this table rely on their handler's own decode-and-check; the
// schemas here cover the tools whose arguments gate real mutations.
var toolSchemas = map[string]string{
	"begin_session": `{
		"type": "object",
		"required": ["workspace_root"],
		"properties": {
			"workspace_root": {"type": "string", "minLength": 1},
			"operator_id":    {"type": "string"},
			"role":           {"type": "string", "enum": ["PLANNER", "EXECUTOR", "OWNER"]}
		}
	}`,
	"write_file": `{
		"type": "object",
		"required": ["path", "content", "plan_hash", "phase_id", "purpose", "connected_via", "failure_modes", "intent"],
		"properties": {
			"path":          {"type": "string", "minLength": 1},
			"content":       {"type": "string"},
			"plan_hash":     {"type": "string", "pattern": "^[0-9a-f]{64}$"},
			"phase_id":      {"type": "string", "pattern": "^[A-Z][A-Z0-9_]*$"},
			"purpose":       {"type": "string", "minLength": 1},
			"connected_via": {"type": "string", "minLength": 1},
			"failure_modes": {"type": "string", "minLength": 1},
			"intent":        {"type": "string", "minLength": 20},
			"risk_acknowledged":       {"type": "boolean"},
			"risk_consequence_string": {"type": "string"},
			"extra_role_fields":       {"type": "object"}
		}
	}`,
	"bootstrap_create_foundation_plan": `{
		"type": "object",
		"required": ["plan_content", "hmac_payload", "hmac_signature"],
		"properties": {
			"plan_content":   {"type": "string", "minLength": 1},
			"hmac_payload":   {"type": "string"},
			"hmac_signature": {"type": "string"}
		}
	}`,
}

// defaultSchemaRegistry compiles the static schema table. The table is a
// compile-time literal, so a compilation failure is a programming error,
// not a runtime condition.
func defaultSchemaRegistry() *policy.SchemaRegistry {
	reg, err := policy.NewSchemaRegistry(toolSchemas)
	if err != nil {
		panic("dispatch: compiling tool schemas: " + err.Error())
	}
	return reg
}
