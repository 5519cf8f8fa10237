// Package db provides action CRUD and the status state machine.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultActionTTL is the approval window applied when no expiry is given.
const DefaultActionTTL = 24 * time.Hour

// CreateAction inserts a new action. Generates a UUID if the ID is unset and
// applies the default expiry when ExpiresAt is zero.
func (db *DB) CreateAction(a *Action) error {
	if a.Command == "" {
		return fmt.Errorf("command is required")
	}
	if a.RequestedBy == "" {
		return fmt.Errorf("requested_by is required")
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.ActionType == "" {
		a.ActionType = "command"
	}
	if a.Status == "" {
		a.Status = StatusPending
	}

	now := time.Now().UTC()
	if a.RequestedAt.IsZero() {
		a.RequestedAt = now
	}
	if a.ExpiresAt.IsZero() {
		a.ExpiresAt = a.RequestedAt.Add(DefaultActionTTL)
	}

	metadata, err := marshalMap(a.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	checkpoint, err := marshalMap(a.CheckpointData)
	if err != nil {
		return fmt.Errorf("encoding checkpoint data: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO actions (
			id, action_type, status, command, description, risk_level,
			requested_by, requested_at, rollback_command, expires_at,
			requires_checkpoint, metadata, checkpoint_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ActionType, string(a.Status), a.Command, a.Description, string(a.RiskLevel),
		a.RequestedBy, a.RequestedAt.Format(time.RFC3339Nano), a.RollbackCommand,
		a.ExpiresAt.Format(time.RFC3339Nano), boolToInt(a.RequiresCheckpoint),
		metadata, checkpoint)
	if err != nil {
		return fmt.Errorf("creating action: %w", err)
	}

	return nil
}

// GetAction retrieves an action by ID. A pending action past its expiry is
// transitioned to expired before being returned.
func (db *DB) GetAction(id string) (*Action, error) {
	a, err := db.getAction(id)
	if err != nil {
		return nil, err
	}

	if a.Status == StatusPending && a.IsExpired(time.Now().UTC()) {
		// Best effort; if another caller expired it first the CAS is a no-op.
		if err := db.markExpired(a.ID); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return db.getAction(id)
	}

	return a, nil
}

func (db *DB) getAction(id string) (*Action, error) {
	row := db.QueryRow(selectActionSQL+` WHERE id = ?`, id)
	return scanAction(row)
}

// ListPendingActions returns pending actions ordered by request time, newest
// first. actionType filters by type when non-empty; limit<=0 means no limit.
// Expired pending rows are swept to expired first and excluded.
func (db *DB) ListPendingActions(actionType string, limit, offset int) ([]*Action, error) {
	if err := db.ExpireStale(time.Now().UTC()); err != nil {
		return nil, err
	}

	query := selectActionSQL + ` WHERE status = ?`
	args := []any{string(StatusPending)}

	if actionType != "" {
		query += ` AND action_type = ?`
		args = append(args, actionType)
	}
	query += ` ORDER BY requested_at DESC`

	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying pending actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// ExpireStale transitions every pending action past its expiry to expired.
// Returns nil when there is nothing to expire.
func (db *DB) ExpireStale(now time.Time) error {
	_, err := db.Exec(`
		UPDATE actions SET status = ? WHERE status = ? AND expires_at < ?
	`, string(StatusExpired), string(StatusPending), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("expiring stale actions: %w", err)
	}
	return nil
}

func (db *DB) markExpired(id string) error {
	return db.transition(id, StatusPending, StatusExpired, nil, nil)
}

// Approve transitions a pending action to approved, recording the approver.
// The status precondition and the write are a single atomic statement, so two
// concurrent approvals cannot both succeed.
func (db *DB) Approve(id, approver string, at time.Time) error {
	return db.transition(id, StatusPending, StatusApproved,
		[]string{"approved_by", "approved_at"},
		[]any{approver, at.UTC().Format(time.RFC3339Nano)})
}

// Reject transitions a pending action to rejected with a reason.
func (db *DB) Reject(id, rejector, reason string, at time.Time) error {
	return db.transition(id, StatusPending, StatusRejected,
		[]string{"rejected_by", "rejected_at", "rejection_reason"},
		[]any{rejector, at.UTC().Format(time.RFC3339Nano), reason})
}

// Cancel transitions a non-terminal action to cancelled.
func (db *DB) Cancel(id string) error {
	result, err := db.Exec(`
		UPDATE actions SET status = ?
		WHERE id = ? AND status IN (?, ?, ?)
	`, string(StatusCancelled), id, string(StatusPending), string(StatusApproved), string(StatusExecuting))
	if err != nil {
		return fmt.Errorf("cancelling action: %w", err)
	}
	return db.checkTransition(id, result)
}

// MarkExecuting claims an approved action for execution. The first caller
// wins; concurrent callers get ErrInvalidTransition.
func (db *DB) MarkExecuting(id string) error {
	return db.transition(id, StatusApproved, StatusExecuting, nil, nil)
}

// FinishExecution records the execution outcome and moves the action from
// executing to executed (exit 0) or failed.
func (db *DB) FinishExecution(id string, record *ExecutionRecord, at time.Time) error {
	to := StatusExecuted
	if record == nil || !record.Success {
		to = StatusFailed
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding execution result: %w", err)
	}

	return db.transition(id, StatusExecuting, to,
		[]string{"executed_at", "execution_result"},
		[]any{at.UTC().Format(time.RFC3339Nano), string(encoded)})
}

// SetCheckpointData stores checkpoint data on a pending action.
func (db *DB) SetCheckpointData(id string, data map[string]any) error {
	encoded, err := marshalMap(data)
	if err != nil {
		return fmt.Errorf("encoding checkpoint data: %w", err)
	}

	result, err := db.Exec(`
		UPDATE actions SET checkpoint_data = ? WHERE id = ? AND status = ?
	`, encoded, id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("setting checkpoint data: %w", err)
	}
	return db.checkTransition(id, result)
}

// CountByStatus returns action counts per status.
func (db *DB) CountByStatus() (map[ActionStatus]int, error) {
	if err := db.ExpireStale(time.Now().UTC()); err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT status, COUNT(*) FROM actions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting actions: %w", err)
	}
	defer rows.Close()

	counts := make(map[ActionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[ActionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}

	return counts, nil
}

// transition performs a compare-and-swap status update: the row must currently
// be in `from`. Extra columns are written in the same statement.
func (db *DB) transition(id string, from, to ActionStatus, cols []string, vals []any) error {
	query := `UPDATE actions SET status = ?`
	args := []any{string(to)}

	for i, col := range cols {
		query += fmt.Sprintf(", %s = ?", col)
		args = append(args, vals[i])
	}

	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))

	result, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("transitioning action %s to %s: %w", id, to, err)
	}
	return db.checkTransition(id, result)
}

// checkTransition distinguishes "no such row" from "row exists but the status
// precondition failed" after a zero-row update.
func (db *DB) checkTransition(id string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = db.QueryRow(`SELECT status FROM actions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrActionNotFound
	}
	if err != nil {
		return fmt.Errorf("checking action status: %w", err)
	}
	return fmt.Errorf("%w: action %s is %s", ErrInvalidTransition, id, status)
}

const selectActionSQL = `
	SELECT id, action_type, status, command, description, risk_level,
	       requested_by, requested_at, approved_by, approved_at,
	       rejected_by, rejected_at, rejection_reason, executed_at,
	       execution_result, metadata, checkpoint_data, rollback_command,
	       expires_at, requires_checkpoint
	FROM actions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*Action, error) {
	a := &Action{}
	var (
		status, riskLevel, requestedAt, expiresAt             string
		approvedBy, approvedAt, rejectedBy, rejectedAt        sql.NullString
		rejectionReason, executedAt, executionResult          sql.NullString
		metadata, checkpointData, rollbackCommand             sql.NullString
		requiresCheckpoint                                    int
	)

	err := row.Scan(&a.ID, &a.ActionType, &status, &a.Command, &a.Description, &riskLevel,
		&a.RequestedBy, &requestedAt, &approvedBy, &approvedAt,
		&rejectedBy, &rejectedAt, &rejectionReason, &executedAt,
		&executionResult, &metadata, &checkpointData, &rollbackCommand,
		&expiresAt, &requiresCheckpoint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("scanning action: %w", err)
	}

	a.Status = ActionStatus(status)
	a.RiskLevel = RiskLevel(riskLevel)
	a.RequiresCheckpoint = requiresCheckpoint != 0
	a.ApprovedBy = approvedBy.String
	a.RejectedBy = rejectedBy.String
	a.RejectionReason = rejectionReason.String
	a.RollbackCommand = rollbackCommand.String

	if a.RequestedAt, err = parseTime(requestedAt); err != nil {
		return nil, fmt.Errorf("parsing requested_at: %w", err)
	}
	if a.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if a.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, fmt.Errorf("parsing approved_at: %w", err)
	}
	if a.RejectedAt, err = parseNullTime(rejectedAt); err != nil {
		return nil, fmt.Errorf("parsing rejected_at: %w", err)
	}
	if a.ExecutedAt, err = parseNullTime(executedAt); err != nil {
		return nil, fmt.Errorf("parsing executed_at: %w", err)
	}

	if executionResult.Valid && executionResult.String != "" {
		record := &ExecutionRecord{}
		if err := json.Unmarshal([]byte(executionResult.String), record); err != nil {
			return nil, fmt.Errorf("decoding execution result: %w", err)
		}
		a.ExecutionResult = record
	}
	if a.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if a.CheckpointData, err = unmarshalMap(checkpointData); err != nil {
		return nil, fmt.Errorf("decoding checkpoint data: %w", err)
	}

	return a, nil
}

func scanActions(rows *sql.Rows) ([]*Action, error) {
	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return actions, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalMap(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
