// Package audit implements the append-only audit log for classification and
// execution outcomes. The framework only ever appends; entries are never read
// back for decision-making.
package audit

import (
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
)

// Entry is one immutable audit record.
type Entry struct {
	Timestamp        time.Time    `json:"timestamp"`
	Actor            string       `json:"actor"`
	Command          string       `json:"command"`
	RiskLevel        db.RiskLevel `json:"risk_level"`
	Mode             db.ExecMode  `json:"mode,omitempty"`
	Success          bool         `json:"success"`
	ExitCode         *int         `json:"exit_code"`
	DurationMs       int64        `json:"duration_ms"`
	RequiresApproval bool         `json:"requires_approval"`
	MatchedRule      string       `json:"matched_rule,omitempty"`
	ActionID         string       `json:"action_id,omitempty"`
}

// Sink receives audit entries.
type Sink interface {
	Append(e Entry) error
	Close() error
}

// NopSink discards entries. Useful in tests.
type NopSink struct{}

func (NopSink) Append(Entry) error { return nil }
func (NopSink) Close() error       { return nil }
