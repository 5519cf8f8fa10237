// Package approval implements the authenticated approval workflow on top of
// the action store. Every operation takes the caller's identity first and
// rejects unauthenticated callers before touching any state.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ScarletRedJoker/jarvis-safety/internal/core"
	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
	"github.com/ScarletRedJoker/jarvis-safety/internal/integrations"
)

// Service errors.
var (
	// ErrUnauthorized is returned when the caller identity is missing.
	ErrUnauthorized = errors.New("caller identity is required")
	// ErrForbiddenCommand is returned when a created action's command matches
	// a forbidden pattern; such commands can never be queued.
	ErrForbiddenCommand = errors.New("command is forbidden by safety policy")
	// ErrCheckpointRequired is returned when approving an action that
	// requires checkpoint data before any is attached.
	ErrCheckpointRequired = errors.New("checkpoint data must be captured before approval")
)

// Service exposes the approval workflow operations.
type Service struct {
	store      *db.DB
	executor   *core.Executor
	notifier   integrations.ActionNotifier
	defaultTTL time.Duration
	logger     *log.Logger
}

// NewService creates an approval service. The executor is used for the
// execute-immediately approval path.
func NewService(store *db.DB, executor *core.Executor) *Service {
	return &Service{
		store:    store,
		executor: executor,
		notifier: integrations.NoopNotifier{},
		logger:   log.Default().WithPrefix("approval"),
	}
}

// SetDefaultTTL sets the approval window applied when a create request does
// not carry its own. Zero keeps the store's default.
func (s *Service) SetDefaultTTL(d time.Duration) {
	if d > 0 {
		s.defaultTTL = d
	}
}

// SetNotifier installs lifecycle notification hooks. Notification failures
// are logged and never block the workflow.
func (s *Service) SetNotifier(n integrations.ActionNotifier) {
	if n == nil {
		n = integrations.NoopNotifier{}
	}
	s.notifier = n
}

func (s *Service) notify(event string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("notification failed", "event", event, "error", err)
	}
}

// CreateOptions describes a directly created pending action.
type CreateOptions struct {
	ActionType  string
	Command     string
	Description string
	// ExpiresIn overrides the default 24h approval window.
	ExpiresIn          time.Duration
	Metadata           map[string]any
	RollbackCommand    string
	RequiresCheckpoint bool
}

// Create classifies the command and inserts a pending action. Forbidden
// commands are refused outright; they can never enter the approval queue.
func (s *Service) Create(identity string, opts CreateOptions) (*db.Action, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Command) == "" {
		return nil, fmt.Errorf("command is required")
	}

	classification := s.executor.Classifier().Classify(opts.Command)
	if !classification.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbiddenCommand, classification.MatchedRule)
	}

	action := &db.Action{
		ActionType:         opts.ActionType,
		Command:            opts.Command,
		Description:        opts.Description,
		RiskLevel:          classification.RiskLevel,
		RequestedBy:        identity,
		Metadata:           opts.Metadata,
		RollbackCommand:    opts.RollbackCommand,
		RequiresCheckpoint: opts.RequiresCheckpoint,
	}
	ttl := opts.ExpiresIn
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > 0 {
		action.RequestedAt = time.Now().UTC()
		action.ExpiresAt = action.RequestedAt.Add(ttl)
	}

	if err := s.store.CreateAction(action); err != nil {
		return nil, fmt.Errorf("creating action: %w", err)
	}

	s.logger.Info("action created",
		"action_id", action.ID, "requested_by", identity, "risk", action.RiskLevel)
	s.notify("created", func() error { return s.notifier.NotifyActionCreated(action) })
	return action, nil
}

// Get returns an action by id, applying expiry on read.
func (s *Service) Get(identity, id string) (*db.Action, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	return s.store.GetAction(id)
}

// ListOptions filters and paginates pending listings.
type ListOptions struct {
	ActionType string
	Limit      int
	Offset     int
}

// ListPending returns pending actions, newest first.
func (s *Service) ListPending(identity string, opts ListOptions) ([]*db.Action, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	return s.store.ListPendingActions(opts.ActionType, opts.Limit, opts.Offset)
}

// ApproveOptions configures approval.
type ApproveOptions struct {
	// ExecuteImmediately runs the stored command right after approval as one
	// atomic approve-then-execute operation.
	ExecuteImmediately bool
}

// ApproveResult is the outcome of an approve call.
type ApproveResult struct {
	Action *db.Action       `json:"action"`
	Result *core.ExecResult `json:"execution_result,omitempty"`
	// RecommendedRollback is surfaced when execution failed and the action
	// carries a rollback command. It is never invoked automatically.
	RecommendedRollback string `json:"recommended_rollback,omitempty"`
}

// Approve transitions a pending action to approved and, when requested,
// executes it immediately. The pending→approved and approved→executing steps
// are both compare-and-swap updates, so concurrent approvals cannot
// double-execute.
func (s *Service) Approve(ctx context.Context, identity, id string, opts ApproveOptions) (*ApproveResult, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}

	action, err := s.store.GetAction(id)
	if err != nil {
		return nil, err
	}
	if action.RequiresCheckpoint && len(action.CheckpointData) == 0 {
		return nil, ErrCheckpointRequired
	}

	now := time.Now().UTC()
	if err := s.store.Approve(id, identity, now); err != nil {
		return nil, err
	}

	s.logger.Info("action approved", "action_id", id, "approved_by", identity)

	out := &ApproveResult{}
	if opts.ExecuteImmediately {
		result, execErr := s.executor.ExecuteApprovedAction(ctx, id)
		out.Result = result
		if execErr != nil {
			return nil, fmt.Errorf("executing approved action: %w", execErr)
		}
		if result != nil && !result.Success && action.RollbackCommand != "" {
			out.RecommendedRollback = action.RollbackCommand
		}
	}

	out.Action, err = s.store.GetAction(id)
	if err != nil {
		return nil, err
	}

	s.notify("approved", func() error { return s.notifier.NotifyActionApproved(out.Action) })
	if out.Result != nil && out.Result.ExitCode != nil {
		code := *out.Result.ExitCode
		s.notify("executed", func() error { return s.notifier.NotifyActionExecuted(out.Action, code) })
	}
	return out, nil
}

// Reject transitions a pending action to rejected with a reason.
func (s *Service) Reject(identity, id, reason string) (*db.Action, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}

	if err := s.store.Reject(id, identity, reason, time.Now().UTC()); err != nil {
		return nil, err
	}

	s.logger.Info("action rejected", "action_id", id, "rejected_by", identity)
	action, err := s.store.GetAction(id)
	if err != nil {
		return nil, err
	}
	s.notify("rejected", func() error { return s.notifier.NotifyActionRejected(action) })
	return action, nil
}

// Cancel moves a non-terminal action to cancelled.
func (s *Service) Cancel(identity, id string) (*db.Action, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}

	if err := s.store.Cancel(id); err != nil {
		return nil, err
	}

	s.logger.Info("action cancelled", "action_id", id, "cancelled_by", identity)
	return s.store.GetAction(id)
}

// AttachCheckpoint stores checkpoint data on a pending action.
func (s *Service) AttachCheckpoint(identity, id string, data map[string]any) (*db.Action, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("checkpoint data is required")
	}

	if err := s.store.SetCheckpointData(id, data); err != nil {
		return nil, err
	}
	return s.store.GetAction(id)
}

// Stats holds action counts per status.
type Stats struct {
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Executing int `json:"executing"`
	Executed  int `json:"executed"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Expired   int `json:"expired"`
	Total     int `json:"total"`
}

// GetStats returns aggregate counts per status.
func (s *Service) GetStats(identity string) (*Stats, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}

	counts, err := s.store.CountByStatus()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Pending:   counts[db.StatusPending],
		Approved:  counts[db.StatusApproved],
		Executing: counts[db.StatusExecuting],
		Executed:  counts[db.StatusExecuted],
		Rejected:  counts[db.StatusRejected],
		Failed:    counts[db.StatusFailed],
		Cancelled: counts[db.StatusCancelled],
		Expired:   counts[db.StatusExpired],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func requireIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrUnauthorized
	}
	return nil
}
