package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/core"
	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
	"github.com/ScarletRedJoker/jarvis-safety/internal/testutil"
)

func setupService(t *testing.T) (*Service, *db.DB, *testutil.FakeRunner) {
	t.Helper()

	store := testutil.NewTestDB(t)
	runner := &testutil.FakeRunner{}
	executor := core.NewExecutor(store, nil, nil, nil, core.WithRunner(runner))
	return NewService(store, executor), store, runner
}

func TestEveryOperationRequiresIdentity(t *testing.T) {
	svc, store, _ := setupService(t)
	action := testutil.MakeAction(t, store)

	ctx := context.Background()
	calls := []struct {
		name string
		call func() error
	}{
		{"create", func() error {
			_, err := svc.Create("", CreateOptions{Command: "docker ps"})
			return err
		}},
		{"get", func() error { _, err := svc.Get(" ", action.ID); return err }},
		{"list", func() error { _, err := svc.ListPending("", ListOptions{}); return err }},
		{"approve", func() error { _, err := svc.Approve(ctx, "", action.ID, ApproveOptions{}); return err }},
		{"reject", func() error { _, err := svc.Reject("", action.ID, "no"); return err }},
		{"cancel", func() error { _, err := svc.Cancel("", action.ID); return err }},
		{"checkpoint", func() error {
			_, err := svc.AttachCheckpoint("", action.ID, map[string]any{"k": "v"})
			return err
		}},
		{"stats", func() error { _, err := svc.GetStats(""); return err }},
	}

	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			testutil.RequireErrorIs(t, tc.call(), ErrUnauthorized, "identity check")
		})
	}

	// Nothing mutated.
	got, err := store.GetAction(action.ID)
	testutil.RequireNoError(t, err, "get action")
	testutil.RequireEqual(t, db.StatusPending, got.Status, "status untouched")
}

func TestCreateClassifiesAndQueues(t *testing.T) {
	svc, _, _ := setupService(t)

	action, err := svc.Create("alice", CreateOptions{
		ActionType:  "container",
		Command:     "docker rm -f web",
		Description: "remove broken container",
	})
	testutil.RequireNoError(t, err, "create")
	testutil.RequireEqual(t, db.StatusPending, action.Status, "status")
	testutil.RequireEqual(t, db.RiskHigh, action.RiskLevel, "risk level")
	testutil.RequireEqual(t, "alice", action.RequestedBy, "requested by")
}

func TestCreateRefusesForbiddenCommand(t *testing.T) {
	svc, store, _ := setupService(t)

	_, err := svc.Create("alice", CreateOptions{Command: "rm -rf /"})
	testutil.RequireErrorIs(t, err, ErrForbiddenCommand, "forbidden create")

	pending, err := store.ListPendingActions("", 10, 0)
	testutil.RequireNoError(t, err, "list")
	testutil.RequireLen(t, pending, 0, "no action queued")
}

func TestCreateCustomExpiry(t *testing.T) {
	svc, _, _ := setupService(t)

	action, err := svc.Create("alice", CreateOptions{
		Command:   "docker restart web",
		ExpiresIn: time.Hour,
	})
	testutil.RequireNoError(t, err, "create")

	window := action.ExpiresAt.Sub(action.RequestedAt)
	testutil.RequireEqual(t, time.Hour, window, "expiry window")
}

func TestCreateUsesConfiguredDefaultTTL(t *testing.T) {
	svc, _, _ := setupService(t)
	svc.SetDefaultTTL(2 * time.Hour)

	action, err := svc.Create("alice", CreateOptions{Command: "docker restart web"})
	testutil.RequireNoError(t, err, "create")

	window := action.ExpiresAt.Sub(action.RequestedAt)
	testutil.RequireEqual(t, 2*time.Hour, window, "configured default window")

	// An explicit window still takes precedence.
	action, err = svc.Create("alice", CreateOptions{
		Command:   "docker restart web",
		ExpiresIn: time.Hour,
	})
	testutil.RequireNoError(t, err, "create with explicit expiry")
	testutil.RequireEqual(t, time.Hour, action.ExpiresAt.Sub(action.RequestedAt), "explicit window")
}

func TestApproveWithoutExecution(t *testing.T) {
	svc, store, runner := setupService(t)
	action := testutil.MakeAction(t, store)

	res, err := svc.Approve(context.Background(), "bob", action.ID, ApproveOptions{})
	testutil.RequireNoError(t, err, "approve")
	testutil.RequireEqual(t, db.StatusApproved, res.Action.Status, "status")
	testutil.RequireEqual(t, "bob", res.Action.ApprovedBy, "approver")
	testutil.RequireLen(t, runner.Calls(), 0, "nothing executed")
	if res.Result != nil {
		t.Error("unexpected execution result")
	}
}

func TestApproveExecuteImmediately(t *testing.T) {
	svc, store, runner := setupService(t)
	action := testutil.MakeAction(t, store, testutil.WithCommand("docker restart web"))

	res, err := svc.Approve(context.Background(), "bob", action.ID, ApproveOptions{ExecuteImmediately: true})
	testutil.RequireNoError(t, err, "approve")
	testutil.RequireEqual(t, db.StatusExecuted, res.Action.Status, "status")
	if res.Result == nil || !res.Result.Success {
		t.Fatalf("execution result = %+v", res.Result)
	}
	testutil.RequireLen(t, runner.Calls(), 1, "one execution")
	testutil.RequireEqual(t, "docker restart web", runner.Calls()[0], "executed command")

	if res.Action.ExecutionResult == nil || !res.Action.ExecutionResult.Success {
		t.Errorf("execution result not persisted: %+v", res.Action.ExecutionResult)
	}
}

func TestApproveExecutionFailureRecommendsRollback(t *testing.T) {
	svc, store, runner := setupService(t)
	runner.Output = &core.RunOutput{Stderr: "boom\n", ExitCode: 1, Duration: time.Millisecond}

	action := testutil.MakeAction(t, store,
		testutil.WithCommand("systemctl stop nginx"),
		testutil.WithRollback("systemctl start nginx"))

	res, err := svc.Approve(context.Background(), "bob", action.ID, ApproveOptions{ExecuteImmediately: true})
	testutil.RequireNoError(t, err, "approve")
	testutil.RequireEqual(t, db.StatusFailed, res.Action.Status, "status")
	testutil.RequireEqual(t, "systemctl start nginx", res.RecommendedRollback, "rollback recommendation")
}

func TestApproveNonPendingFailsWithoutMutation(t *testing.T) {
	svc, store, runner := setupService(t)
	action := testutil.MakeAction(t, store)

	_, err := svc.Reject("bob", action.ID, "not needed")
	testutil.RequireNoError(t, err, "reject")

	_, err = svc.Approve(context.Background(), "carol", action.ID, ApproveOptions{ExecuteImmediately: true})
	testutil.RequireErrorIs(t, err, db.ErrInvalidTransition, "approve rejected action")
	testutil.RequireLen(t, runner.Calls(), 0, "nothing executed")

	got, err := store.GetAction(action.ID)
	testutil.RequireNoError(t, err, "get")
	testutil.RequireEqual(t, db.StatusRejected, got.Status, "status unchanged")
	testutil.RequireEqual(t, "", got.ApprovedBy, "no approver recorded")
}

func TestApproveMissingAction(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Approve(context.Background(), "bob", "ghost", ApproveOptions{})
	testutil.RequireErrorIs(t, err, db.ErrActionNotFound, "missing action")
}

func TestApproveRequiresCheckpointFirst(t *testing.T) {
	svc, store, _ := setupService(t)
	action := testutil.MakeAction(t, store, testutil.WithCheckpointRequired())

	_, err := svc.Approve(context.Background(), "bob", action.ID, ApproveOptions{})
	testutil.RequireErrorIs(t, err, ErrCheckpointRequired, "checkpoint gate")

	_, err = svc.AttachCheckpoint("alice", action.ID, map[string]any{"snapshot": "s1"})
	testutil.RequireNoError(t, err, "attach checkpoint")

	res, err := svc.Approve(context.Background(), "bob", action.ID, ApproveOptions{})
	testutil.RequireNoError(t, err, "approve after checkpoint")
	testutil.RequireEqual(t, db.StatusApproved, res.Action.Status, "status")
}

func TestConcurrentApproveExecuteSingleWinner(t *testing.T) {
	svc, store, runner := setupService(t)
	action := testutil.MakeAction(t, store, testutil.WithCommand("docker restart web"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Approve(context.Background(), "bob", action.ID, ApproveOptions{ExecuteImmediately: true})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	testutil.RequireEqual(t, 1, succeeded, "exactly one approval wins")
	testutil.RequireLen(t, runner.Calls(), 1, "command runs once")
}

func TestRejectRequiresPendingAndKeepsRecord(t *testing.T) {
	svc, store, _ := setupService(t)
	action := testutil.MakeAction(t, store)

	got, err := svc.Reject("bob", action.ID, "too risky")
	testutil.RequireNoError(t, err, "reject")
	testutil.RequireEqual(t, db.StatusRejected, got.Status, "status")
	testutil.RequireEqual(t, "too risky", got.RejectionReason, "reason")
	testutil.RequireEqual(t, "bob", got.RejectedBy, "rejector")

	// Rejected actions stay queryable forever.
	again, err := store.GetAction(action.ID)
	testutil.RequireNoError(t, err, "get after reject")
	testutil.RequireEqual(t, db.StatusRejected, again.Status, "still rejected")
}

func TestCancel(t *testing.T) {
	svc, store, _ := setupService(t)
	action := testutil.MakeAction(t, store)

	got, err := svc.Cancel("alice", action.ID)
	testutil.RequireNoError(t, err, "cancel")
	testutil.RequireEqual(t, db.StatusCancelled, got.Status, "status")

	_, err = svc.Approve(context.Background(), "bob", action.ID, ApproveOptions{})
	testutil.RequireErrorIs(t, err, db.ErrInvalidTransition, "approve cancelled")

	_, err = store.GetAction(action.ID)
	testutil.RequireNoError(t, err, "cancelled action still stored")
}

func TestGetStats(t *testing.T) {
	svc, store, _ := setupService(t)

	testutil.MakeAction(t, store)
	testutil.MakeAction(t, store)
	rejected := testutil.MakeAction(t, store)
	_, err := svc.Reject("bob", rejected.ID, "no")
	testutil.RequireNoError(t, err, "reject")

	approved := testutil.MakeAction(t, store)
	_, err = svc.Approve(context.Background(), "bob", approved.ID, ApproveOptions{})
	testutil.RequireNoError(t, err, "approve")

	stats, err := svc.GetStats("alice")
	testutil.RequireNoError(t, err, "stats")
	testutil.RequireEqual(t, 2, stats.Pending, "pending")
	testutil.RequireEqual(t, 1, stats.Rejected, "rejected")
	testutil.RequireEqual(t, 1, stats.Approved, "approved")
	testutil.RequireEqual(t, 4, stats.Total, "total")
}

func TestExpiredActionCannotBeApproved(t *testing.T) {
	svc, store, _ := setupService(t)
	action := testutil.MakeAction(t, store,
		testutil.WithExpiresAt(time.Now().UTC().Add(-time.Minute)))

	_, err := svc.Approve(context.Background(), "bob", action.ID, ApproveOptions{})
	if !errors.Is(err, db.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition after expiry", err)
	}

	got, err := store.GetAction(action.ID)
	testutil.RequireNoError(t, err, "get")
	testutil.RequireEqual(t, db.StatusExpired, got.Status, "status")
}
