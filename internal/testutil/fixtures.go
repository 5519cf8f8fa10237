package testutil

import (
	"testing"
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
)

// ActionOption customizes a test action.
type ActionOption func(*db.Action)

// MakeAction creates and inserts a pending action into the store.
func MakeAction(t *testing.T, store *db.DB, opts ...ActionOption) *db.Action {
	t.Helper()

	a := &db.Action{
		ActionType:  "command",
		Command:     "docker restart web",
		Description: "test action",
		RiskLevel:   db.RiskHigh,
		RequestedBy: "tester@localhost",
	}
	for _, opt := range opts {
		opt(a)
	}
	RequireNoError(t, store.CreateAction(a), "create action")
	return a
}

// WithCommand sets the stored command.
func WithCommand(raw string) ActionOption {
	return func(a *db.Action) { a.Command = raw }
}

// WithActionType sets the action type.
func WithActionType(actionType string) ActionOption {
	return func(a *db.Action) { a.ActionType = actionType }
}

// WithRisk sets the risk level.
func WithRisk(level db.RiskLevel) ActionOption {
	return func(a *db.Action) { a.RiskLevel = level }
}

// WithRequestedBy sets the requesting actor.
func WithRequestedBy(actor string) ActionOption {
	return func(a *db.Action) { a.RequestedBy = actor }
}

// WithExpiresAt overrides the expiry timestamp.
func WithExpiresAt(at time.Time) ActionOption {
	return func(a *db.Action) { a.ExpiresAt = at }
}

// WithRequestedAt overrides the request timestamp.
func WithRequestedAt(at time.Time) ActionOption {
	return func(a *db.Action) { a.RequestedAt = at }
}

// WithRollback sets the recommended rollback command.
func WithRollback(cmd string) ActionOption {
	return func(a *db.Action) { a.RollbackCommand = cmd }
}

// WithCheckpointRequired marks the action as requiring checkpoint data
// before approval.
func WithCheckpointRequired() ActionOption {
	return func(a *db.Action) { a.RequiresCheckpoint = true }
}

// WithMetadata sets the metadata map.
func WithMetadata(m map[string]any) ActionOption {
	return func(a *db.Action) { a.Metadata = m }
}
