// Package core implements the safe command executor.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ScarletRedJoker/jarvis-safety/internal/audit"
	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
	"github.com/ScarletRedJoker/jarvis-safety/internal/utils"
)

// Execution errors.
var (
	ErrActionNotApproved = errors.New("action is not approved")
	ErrAlreadyExecuting  = errors.New("action is already being executed")
)

// DefaultExecutionTimeout bounds how long a spawned command may run.
const DefaultExecutionTimeout = 30 * time.Second

// ExecRequest describes one command execution request.
type ExecRequest struct {
	// Command is the raw shell command.
	Command string
	// Actor is the identity requesting execution; unit of rate limiting and
	// of requested_by attribution.
	Actor string
	// Mode selects dry_run or execute. Empty means execute.
	Mode db.ExecMode
	// Timeout overrides the execution timeout for this request.
	Timeout time.Duration
	// ActionType tags the action created when approval is required.
	ActionType string
	// Description is carried onto the created action.
	Description string
}

// ExecResult is the structured outcome of an execution request. Immutable
// once produced.
type ExecResult struct {
	Success           bool              `json:"success"`
	Command           string            `json:"command"`
	Stdout            string            `json:"stdout,omitempty"`
	Stderr            string            `json:"stderr,omitempty"`
	ExitCode          *int              `json:"exit_code"`
	Duration          time.Duration     `json:"-"`
	DurationMs        int64             `json:"duration_ms"`
	RiskLevel         db.RiskLevel      `json:"risk_level"`
	Mode              db.ExecMode       `json:"mode,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	RequiresApproval  bool              `json:"requires_approval"`
	ValidationMessage string            `json:"validation_message,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Record converts the result to its persisted form.
func (r *ExecResult) Record() *db.ExecutionRecord {
	return &db.ExecutionRecord{
		Success:           r.Success,
		Command:           r.Command,
		Stdout:            r.Stdout,
		Stderr:            r.Stderr,
		ExitCode:          r.ExitCode,
		DurationMs:        r.DurationMs,
		RiskLevel:         r.RiskLevel,
		Mode:              r.Mode,
		Timestamp:         r.Timestamp,
		RequiresApproval:  r.RequiresApproval,
		ValidationMessage: r.ValidationMessage,
		Metadata:          r.Metadata,
	}
}

// Executor orchestrates classification, rate limiting, dry runs, immediate
// execution, and hand-off to the approval workflow. All collaborators are
// injected so isolated instances can coexist and tests can substitute fakes.
type Executor struct {
	store      *db.DB
	classifier *Classifier
	limiter    *RateLimiter
	sink       audit.Sink
	runner     Runner
	timeout    time.Duration
	actionTTL  time.Duration
	logger     *log.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunner overrides the subprocess runner.
func WithRunner(r Runner) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithTimeout sets the default execution timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithActionTTL sets the approval window for actions the executor queues.
// Zero keeps the store's default.
func WithActionTTL(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.actionTTL = d
		}
	}
}

// WithLogger overrides the executor's logger.
func WithLogger(l *log.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor. A nil classifier gets the built-in rules;
// a nil limiter gets the default window; a nil sink discards audit entries.
func NewExecutor(store *db.DB, classifier *Classifier, limiter *RateLimiter, sink audit.Sink, opts ...ExecutorOption) *Executor {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if limiter == nil {
		limiter = NewRateLimiter(0, 0)
	}
	if sink == nil {
		sink = audit.NopSink{}
	}

	e := &Executor{
		store:      store,
		classifier: classifier,
		limiter:    limiter,
		sink:       sink,
		runner:     &ShellRunner{},
		timeout:    DefaultExecutionTimeout,
		logger:     log.Default().WithPrefix("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classifier returns the executor's classifier.
func (e *Executor) Classifier() *Classifier { return e.classifier }

// DryRun reports what classification and approval outcome a command would
// receive. No process is ever started.
func (e *Executor) DryRun(ctx context.Context, command, actor string) *ExecResult {
	return e.Execute(ctx, ExecRequest{Command: command, Actor: actor, Mode: db.ModeDryRun})
}

// Execute runs the full decision pipeline for a command. Policy violations
// and rate limiting are expected outcomes, returned as ordinary results, not
// errors. Every path writes one audit entry before returning.
func (e *Executor) Execute(ctx context.Context, req ExecRequest) *ExecResult {
	classification := e.classifier.Classify(req.Command)

	result := &ExecResult{
		Command:           req.Command,
		RiskLevel:         classification.RiskLevel,
		Timestamp:         time.Now().UTC(),
		RequiresApproval:  classification.RequiresApproval,
		ValidationMessage: classification.MatchedRule,
	}

	// Forbidden commands are blocked before the rate limiter is consulted;
	// they consume no budget and never spawn anything.
	if !classification.Allowed {
		result.Stderr = fmt.Sprintf("Command blocked by safety policy: %s", classification.MatchedRule)
		e.logger.Warn("command blocked", "actor", req.Actor, "rule", classification.MatchedRule)
		e.append(req.Actor, result)
		return result
	}

	if req.Mode == db.ModeDryRun {
		result.Success = true
		result.Mode = db.ModeDryRun
		result.Stdout = dryRunPreview(classification)
		e.append(req.Actor, result)
		return result
	}

	if decision := e.limiter.CheckAndRecord(req.Actor); !decision.Allowed {
		result.Stderr = fmt.Sprintf("Rate limit exceeded: %d executions per %s",
			e.limiter.Cap(), e.limiter.Window())
		if decision.RetryAfter > 0 {
			result.Metadata = map[string]string{
				"retry_after_ms": fmt.Sprintf("%d", decision.RetryAfter.Milliseconds()),
			}
		}
		e.logger.Warn("rate limited", "actor", req.Actor)
		e.append(req.Actor, result)
		return result
	}

	if classification.RequiresApproval {
		return e.queueForApproval(req, classification, result)
	}

	return e.run(ctx, req, result)
}

// queueForApproval creates a pending action instead of running the command.
// The request is accepted (success=true) but nothing executes until the
// action is approved.
func (e *Executor) queueForApproval(req ExecRequest, c Classification, result *ExecResult) *ExecResult {
	action := &db.Action{
		ActionType:  req.ActionType,
		Command:     req.Command,
		Description: req.Description,
		RiskLevel:   c.RiskLevel,
		RequestedBy: req.Actor,
		Metadata:    map[string]any{"matched_rule": c.MatchedRule},
	}
	if e.actionTTL > 0 {
		action.RequestedAt = time.Now().UTC()
		action.ExpiresAt = action.RequestedAt.Add(e.actionTTL)
	}

	if err := e.store.CreateAction(action); err != nil {
		result.Stderr = fmt.Sprintf("failed to queue for approval: %v", err)
		e.append(req.Actor, result)
		return result
	}

	result.Success = true
	result.Mode = db.ModeApprovalRequired
	result.Metadata = map[string]string{"action_id": action.ID}
	result.ValidationMessage = fmt.Sprintf("approval required (%s): %s", c.RiskLevel, c.MatchedRule)

	e.logger.Info("queued for approval",
		"actor", req.Actor, "action_id", action.ID, "risk", c.RiskLevel)
	e.append(req.Actor, result)
	return result
}

// run spawns the command and captures the outcome.
func (e *Executor) run(ctx context.Context, req ExecRequest, result *ExecResult) *ExecResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := e.runner.Run(runCtx, req.Command)
	result.Mode = db.ModeExecute

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Stderr = fmt.Sprintf("execution timed out after %dms", timeout.Milliseconds())
		result.Duration = timeout
	case err != nil:
		// Spawn failure: exit code stays null.
		result.Stderr = err.Error()
	default:
		exitCode := out.ExitCode
		result.Success = exitCode == 0
		// Captured output is persisted and audited; keep it plain text.
		result.Stdout = utils.SanitizeInput(out.Stdout)
		result.Stderr = utils.SanitizeInput(out.Stderr)
		result.ExitCode = &exitCode
		result.Duration = out.Duration
	}
	result.DurationMs = result.Duration.Milliseconds()

	e.append(req.Actor, result)
	return result
}

// ExecuteApprovedAction runs the stored command of an already-approved
// action, bypassing the approval gate. The approved→executing claim is a
// compare-and-swap, so the first caller wins and concurrent callers fail
// without double execution.
func (e *Executor) ExecuteApprovedAction(ctx context.Context, actionID string) (*ExecResult, error) {
	action, err := e.store.GetAction(actionID)
	if err != nil {
		return nil, err
	}

	if err := e.store.MarkExecuting(actionID); err != nil {
		if errors.Is(err, db.ErrInvalidTransition) {
			if action.Status == db.StatusExecuting {
				return nil, ErrAlreadyExecuting
			}
			return nil, fmt.Errorf("%w: status is %s", ErrActionNotApproved, action.Status)
		}
		return nil, err
	}

	result := &ExecResult{
		Command:   action.Command,
		RiskLevel: action.RiskLevel,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"action_id": action.ID},
	}
	result = e.run(ctx, ExecRequest{Command: action.Command, Actor: action.RequestedBy}, result)

	now := time.Now().UTC()
	if err := e.store.FinishExecution(actionID, result.Record(), now); err != nil {
		e.logger.Error("failed to record execution outcome", "action_id", actionID, "error", err)
		return result, err
	}

	if !result.Success && action.RollbackCommand != "" {
		// Rollback is a recommendation, never auto-invoked.
		result.ValidationMessage = fmt.Sprintf("execution failed; recommended rollback: %s", action.RollbackCommand)
	}

	return result, nil
}

func (e *Executor) append(actor string, r *ExecResult) {
	entry := audit.Entry{
		Timestamp:        r.Timestamp,
		Actor:            actor,
		Command:          r.Command,
		RiskLevel:        r.RiskLevel,
		Mode:             r.Mode,
		Success:          r.Success,
		ExitCode:         r.ExitCode,
		DurationMs:       r.DurationMs,
		RequiresApproval: r.RequiresApproval,
		MatchedRule:      r.ValidationMessage,
	}
	if r.Metadata != nil {
		entry.ActionID = r.Metadata["action_id"]
	}
	if err := e.sink.Append(entry); err != nil {
		e.logger.Error("failed to append audit entry", "error", err)
	}
}

func dryRunPreview(c Classification) string {
	if c.RequiresApproval {
		return fmt.Sprintf("[dry run] risk=%s rule=%q: approval would be required before execution",
			c.RiskLevel, c.MatchedRule)
	}
	return fmt.Sprintf("[dry run] risk=%s rule=%q: command would execute immediately",
		c.RiskLevel, c.MatchedRule)
}
