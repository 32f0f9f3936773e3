package auditlog

import "time"

// Result is the outcome discriminator for an audit entry.
type Result string

const (
	ResultOK      Result = "ok"
	ResultError   Result = "error"
	ResultRefusal Result = "refusal"
)

// Entry is one hash-chained audit-log record. Genesis is the literal
// PrevHash value of the first entry in a log.
type Entry struct {
	Seq         int64     `json:"seq"`
	TS          time.Time `json:"ts"`
	SessionID   string    `json:"session_id"`
	OperatorID  string    `json:"operator_id"`
	Role        string    `json:"role"`
	Tool        string    `json:"tool"`
	PlanHash    *string   `json:"plan_hash"`
	PhaseID     *string   `json:"phase_id"`
	ArgsHash    string    `json:"args_hash"`
	Result      Result    `json:"result"`
	ErrorCode   *string   `json:"error_code"`
	InvariantID *string   `json:"invariant_id"`
	Notes       string    `json:"notes"`
	PrevHash    string    `json:"prev_hash"`
	EntryHash   string    `json:"entry_hash"`
}

// Genesis is the prev_hash literal for the first entry ever appended to a log.
const Genesis = "GENESIS"

// hashableEntry mirrors Entry but omits EntryHash: the entry hash is
// computed over every other field. canon.Marshal sorts keys, so field
// order here is irrelevant, but the field set must match Entry exactly.
type hashableEntry struct {
	Seq         int64     `json:"seq"`
	TS          time.Time `json:"ts"`
	SessionID   string    `json:"session_id"`
	OperatorID  string    `json:"operator_id"`
	Role        string    `json:"role"`
	Tool        string    `json:"tool"`
	PlanHash    *string   `json:"plan_hash"`
	PhaseID     *string   `json:"phase_id"`
	ArgsHash    string    `json:"args_hash"`
	Result      Result    `json:"result"`
	ErrorCode   *string   `json:"error_code"`
	InvariantID *string   `json:"invariant_id"`
	Notes       string    `json:"notes"`
	PrevHash    string    `json:"prev_hash"`
}

func (e *Entry) hashable() hashableEntry {
	return hashableEntry{
		Seq: e.Seq, TS: e.TS, SessionID: e.SessionID, OperatorID: e.OperatorID,
		Role: e.Role, Tool: e.Tool, PlanHash: e.PlanHash, PhaseID: e.PhaseID,
		ArgsHash: e.ArgsHash, Result: e.Result, ErrorCode: e.ErrorCode,
		InvariantID: e.InvariantID, Notes: e.Notes, PrevHash: e.PrevHash,
	}
}
