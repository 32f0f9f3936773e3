package planstore_test

// validPlan is a minimal, fully enforceable plan document satisfying every
// mandatory section, every mandatory phase field, a valid VERSION, and a
// relative, non-escaping allowlist — used as the "this should lint clean"
// fixture across store_test.go and lint_test.go.
const validPlan = `---
STATUS: APPROVED
SCOPE: add a health check endpoint
VERSION: 1.0.0
CREATED: 2026-01-01
PURPOSE: demonstrate a minimal enforceable plan
---

## Plan Metadata

A single-phase plan adding one file.

## Scope & Constraints

Touches only src/health.go.

## Phase Definitions

### PHASE_1

- Objective: create the health check handler file
- Allowed operations: create src/health.go
- Forbidden operations: modify any other file
- Required intent artifacts: purpose, connected_via, failure_modes
- Verification commands: true
- Expected outcomes: src/health.go exists and returns 200
- Failure stop conditions: verification command exits nonzero

## Path Allowlist

- src/health.go

## Verification Gates

Phase PHASE_1 must pass its verification command before approval.

## Forbidden Actions

No other file is touched under this plan.

## Rollback / Failure Policy

Revert src/health.go to its prior state on verification failure.
`
