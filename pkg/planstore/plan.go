// Package planstore implements the plan store (hash-addressed immutable
// plan documents) and the plan linter (pure structural/semantic/scope
// validation). A plan is Markdown with a YAML front matter; its identity
// is the SHA-256 of its exact bytes.
package planstore

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mandatory body section headers, matched as "## <name>" lines.
var MandatorySections = []string{
	"Plan Metadata",
	"Scope & Constraints",
	"Phase Definitions",
	"Path Allowlist",
	"Verification Gates",
	"Forbidden Actions",
	"Rollback / Failure Policy",
}

// PhaseFields names the mandatory per-phase fields beyond the phase's
// own ID, which is carried as the "### <Phase ID>" heading.
var PhaseFields = []string{
	"Objective",
	"Allowed operations",
	"Forbidden operations",
	"Required intent artifacts",
	"Verification commands",
	"Expected outcomes",
	"Failure stop conditions",
}

var phaseIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// FrontMatter holds the parsed YAML-ish header fields.
type FrontMatter struct {
	Status  string `yaml:"STATUS"`
	Scope   string `yaml:"SCOPE"`
	Version string `yaml:"VERSION"`
	Created string `yaml:"CREATED"`
	Purpose string `yaml:"PURPOSE"`
}

// Phase is one parsed phase from the Phase Definitions section.
type Phase struct {
	ID     string
	Fields map[string]string // keyed by PhaseFields entries present
}

// Parsed is the structural decomposition of a plan document, used by
// both the linter and the write gate's plan-lookup path.
type Parsed struct {
	FrontMatter    FrontMatter
	FrontMatterRaw map[string]any
	Sections       map[string]string // section name -> raw body text
	Phases         []Phase
	AllowlistEntries []string
}

// Parse exposes the structural decomposition of a plan document for
// callers outside this package (the write gate's path-scope and
// role-contract checks, the policy engine's allowlist lookups).
func Parse(content string) Parsed {
	return parse(content)
}

// parse splits content into front matter and body sections. It never
// returns an error: malformed input simply yields a Parsed with missing
// sections/phases, which the linter reports as specific error codes.
func parse(content string) Parsed {
	p := Parsed{Sections: map[string]string{}}

	body := content
	if strings.HasPrefix(content, "---") {
		rest := content[3:]
		if idx := strings.Index(rest, "\n---"); idx >= 0 {
			fmBlock := rest[:idx]
			after := rest[idx+4:]
			after = strings.TrimPrefix(after, "\n")
			body = after

			var raw map[string]any
			if err := yaml.Unmarshal([]byte(fmBlock), &raw); err == nil {
				p.FrontMatterRaw = raw
				_ = yaml.Unmarshal([]byte(fmBlock), &p.FrontMatter)
			}
		}
	}

	// Split body into "## Section" blocks.
	lines := strings.Split(body, "\n")
	currentSection := ""
	var currentBody []string
	flushSection := func() {
		if currentSection != "" {
			p.Sections[currentSection] = strings.Join(currentBody, "\n")
		}
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			flushSection()
			currentSection = strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			currentBody = nil
			continue
		}
		currentBody = append(currentBody, line)
	}
	flushSection()

	if phaseBody, ok := p.Sections["Phase Definitions"]; ok {
		p.Phases = parsePhases(phaseBody)
	}
	if allowBody, ok := p.Sections["Path Allowlist"]; ok {
		p.AllowlistEntries = parseBulletList(allowBody)
	}

	return p
}

func parsePhases(body string) []Phase {
	var phases []Phase
	lines := strings.Split(body, "\n")
	var current *Phase
	var fieldName string
	var fieldValue []string

	flushField := func() {
		if current != nil && fieldName != "" {
			current.Fields[fieldName] = strings.TrimSpace(strings.Join(fieldValue, "\n"))
		}
		fieldName = ""
		fieldValue = nil
	}
	flushPhase := func() {
		flushField()
		if current != nil {
			phases = append(phases, *current)
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "### ") {
			flushPhase()
			id := strings.TrimSpace(strings.TrimPrefix(trimmed, "### "))
			current = &Phase{ID: id, Fields: map[string]string{}}
			continue
		}
		if current == nil {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") {
			rest := strings.TrimPrefix(trimmed, "- ")
			if idx := strings.Index(rest, ":"); idx >= 0 {
				label := strings.TrimSpace(strings.Trim(rest[:idx], "*"))
				if isKnownPhaseField(label) {
					flushField()
					fieldName = label
					fieldValue = []string{strings.TrimSpace(rest[idx+1:])}
					continue
				}
			}
		}
		if fieldName != "" {
			fieldValue = append(fieldValue, line)
		}
	}
	flushPhase()
	return phases
}

func isKnownPhaseField(label string) bool {
	for _, f := range PhaseFields {
		if f == label {
			return true
		}
	}
	return false
}

func parseBulletList(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") {
			out = append(out, strings.TrimSpace(strings.TrimPrefix(trimmed, "- ")))
		}
	}
	return out
}
