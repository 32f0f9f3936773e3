// Package governance implements the persisted GovernanceState: the
// bootstrap flag and approved-plan count that survive process restarts.
// It is mutated via read-modify-write under the audit-append lock, the
// same discipline the kill-switch package uses.
package governance

import (
	"encoding/json"
	"fmt"
	"os"
)

// InvBootstrapOnce is the invariant identifier for a second bootstrap attempt.
const InvBootstrapOnce = "INV_BOOTSTRAP_ONCE"

// State is the persisted governance record.
type State struct {
	BootstrapEnabled   bool `json:"bootstrap_enabled"`
	ApprovedPlansCount int  `json:"approved_plans_count"`
}

// Load reads the governance file at path, returning the fresh-workspace
// default ({BootstrapEnabled: true, ApprovedPlansCount: 0}) if it does
// not yet exist.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{BootstrapEnabled: true, ApprovedPlansCount: 0}, nil
		}
		return nil, fmt.Errorf("governance: read: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("governance: parse: %w", err)
	}
	return &s, nil
}

// Save atomically writes the state to path (temp file + rename).
func Save(path string, s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("governance: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(parentDir(path), 0o755); err != nil {
		return fmt.Errorf("governance: mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("governance: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("governance: rename: %w", err)
	}
	return nil
}

// RecordApprovedPlan increments the approved-plan counter and flips
// BootstrapEnabled to false. The flag never flips back: bootstrap is
// valid only against a workspace with zero approved plans. Must be
// called under the audit-append lock by the caller (bootstrap).
func RecordApprovedPlan(path string) (*State, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.ApprovedPlansCount++
	s.BootstrapEnabled = false
	if err := Save(path, s); err != nil {
		return nil, err
	}
	return s, nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
