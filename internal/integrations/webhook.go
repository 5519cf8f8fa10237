package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
)

// Event names carried in webhook payloads.
const (
	EventActionCreated  = "action.created"
	EventActionApproved = "action.approved"
	EventActionRejected = "action.rejected"
	EventActionExecuted = "action.executed"
)

// Importance levels mapped from risk levels.
const (
	ImportanceLow    = "low"
	ImportanceNormal = "normal"
	ImportanceUrgent = "urgent"
)

// ActionNotifier defines notification hooks for the action lifecycle.
// Implementations must be best-effort: callers log failures and move on.
type ActionNotifier interface {
	NotifyActionCreated(action *db.Action) error
	NotifyActionApproved(action *db.Action) error
	NotifyActionRejected(action *db.Action) error
	NotifyActionExecuted(action *db.Action, exitCode int) error
}

// NoopNotifier implements ActionNotifier and does nothing.
type NoopNotifier struct{}

func (NoopNotifier) NotifyActionCreated(*db.Action) error       { return nil }
func (NoopNotifier) NotifyActionApproved(*db.Action) error      { return nil }
func (NoopNotifier) NotifyActionRejected(*db.Action) error      { return nil }
func (NoopNotifier) NotifyActionExecuted(*db.Action, int) error { return nil }

// WebhookClient posts action lifecycle events as JSON to a single endpoint.
// Delivery is best-effort; a missing or unreachable endpoint never blocks
// the approval workflow.
type WebhookClient struct {
	endpoint string
	source   string
	client   *http.Client
}

// NewWebhookClient constructs a client. An empty source defaults to
// "jarvis-safety".
func NewWebhookClient(endpoint, source string) *WebhookClient {
	if source == "" {
		source = "jarvis-safety"
	}
	return &WebhookClient{
		endpoint: endpoint,
		source:   source,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// webhookEvent is the wire payload for a lifecycle notification.
type webhookEvent struct {
	Event      string    `json:"event"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Importance string    `json:"importance"`

	ActionID   string `json:"action_id"`
	ActionType string `json:"action_type"`
	Command    string `json:"command"`
	RiskLevel  string `json:"risk_level"`
	Status     string `json:"status"`

	RequestedBy string `json:"requested_by,omitempty"`
	ApprovedBy  string `json:"approved_by,omitempty"`
	RejectedBy  string `json:"rejected_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ExitCode    *int   `json:"exit_code,omitempty"`
}

// NotifyActionCreated posts an event when an action enters the pending queue.
func (c *WebhookClient) NotifyActionCreated(action *db.Action) error {
	ev := c.event(EventActionCreated, action, importanceForRisk(action.RiskLevel))
	ev.RequestedBy = action.RequestedBy
	return c.send(ev)
}

// NotifyActionApproved posts an event on approval.
func (c *WebhookClient) NotifyActionApproved(action *db.Action) error {
	ev := c.event(EventActionApproved, action, ImportanceNormal)
	ev.ApprovedBy = action.ApprovedBy
	return c.send(ev)
}

// NotifyActionRejected posts an event on rejection.
func (c *WebhookClient) NotifyActionRejected(action *db.Action) error {
	ev := c.event(EventActionRejected, action, ImportanceNormal)
	ev.RejectedBy = action.RejectedBy
	ev.Reason = action.RejectionReason
	return c.send(ev)
}

// NotifyActionExecuted posts an event once execution completes.
func (c *WebhookClient) NotifyActionExecuted(action *db.Action, exitCode int) error {
	ev := c.event(EventActionExecuted, action, ImportanceLow)
	ev.ExitCode = &exitCode
	return c.send(ev)
}

func (c *WebhookClient) event(name string, action *db.Action, importance string) webhookEvent {
	return webhookEvent{
		Event:      name,
		Source:     c.source,
		Timestamp:  time.Now().UTC(),
		Importance: importance,
		ActionID:   action.ID,
		ActionType: action.ActionType,
		Command:    truncate(action.Command, 200),
		RiskLevel:  string(action.RiskLevel),
		Status:     string(action.Status),
	}
}

func (c *WebhookClient) send(ev webhookEvent) error {
	if c.endpoint == "" {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.source)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}
	return nil
}

func importanceForRisk(level db.RiskLevel) string {
	switch level {
	case db.RiskForbidden, db.RiskHigh:
		return ImportanceUrgent
	case db.RiskMedium:
		return ImportanceNormal
	default:
		return ImportanceLow
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
