package auditlog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Index is the optional, rebuildable local mirror of the audit log:
// seq/ts/plan_hash/tool/result columns over a SQLite file, backed by
// modernc.org/sqlite (pure Go, no cgo, no network — a local derived
// index has no business opening a network socket). The JSONL log
// remains the sole source of truth; Index is never consulted by any
// integrity check.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if necessary) the SQLite index file at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open index: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY,
		ts TEXT NOT NULL,
		plan_hash TEXT,
		tool TEXT NOT NULL,
		result TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: create index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

// LastSeq returns the highest seq recorded in the index, or 0 if empty.
func (idx *Index) LastSeq() (int64, error) {
	var seq sql.NullInt64
	if err := idx.db.QueryRow(`SELECT MAX(seq) FROM entries`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("auditlog: last seq: %w", err)
	}
	return seq.Int64, nil
}

// Rebuild truncates and repopulates the index from entries, which must
// already be known to form a valid chain (the caller is expected to have
// called VerifyChain or ReadAll first).
func (idx *Index) Rebuild(entries []Entry) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("auditlog: rebuild begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("auditlog: rebuild clear: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO entries (seq, ts, plan_hash, tool, result) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("auditlog: rebuild prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var planHash any
		if e.PlanHash != nil {
			planHash = *e.PlanHash
		}
		if _, err := stmt.Exec(e.Seq, e.TS.UTC().Format("2006-01-02T15:04:05.000000000Z"), planHash, e.Tool, string(e.Result)); err != nil {
			return fmt.Errorf("auditlog: rebuild insert seq %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// EnsureFresh rebuilds the index from entries whenever it is missing,
// empty, or behind the log's last seq.
func (idx *Index) EnsureFresh(entries []Entry) error {
	lastIndexed, err := idx.LastSeq()
	if err != nil {
		return err
	}
	lastLog := int64(0)
	if len(entries) > 0 {
		lastLog = entries[len(entries)-1].Seq
	}
	if lastIndexed >= lastLog && lastLog > 0 {
		return nil
	}
	return idx.Rebuild(entries)
}

// RangeByPlan returns the seqs of entries recorded against planHash, in
// ascending order, for read_audit_log range queries.
func (idx *Index) RangeByPlan(planHash string) ([]int64, error) {
	rows, err := idx.db.Query(`SELECT seq FROM entries WHERE plan_hash = ? ORDER BY seq ASC`, planHash)
	if err != nil {
		return nil, fmt.Errorf("auditlog: range by plan: %w", err)
	}
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var s int64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("auditlog: scan seq: %w", err)
		}
		seqs = append(seqs, s)
	}
	return seqs, rows.Err()
}
