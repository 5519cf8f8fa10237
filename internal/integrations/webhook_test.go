package integrations

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
	"github.com/ScarletRedJoker/jarvis-safety/internal/testutil"
)

func sampleAction() *db.Action {
	return &db.Action{
		ID:          "act-1",
		ActionType:  "command",
		Command:     "docker restart web",
		RiskLevel:   db.RiskHigh,
		Status:      db.StatusPending,
		RequestedBy: "agent@localhost",
	}
}

func TestWebhookPostsCreatedEvent(t *testing.T) {
	var got webhookEvent
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		testutil.RequireNoError(t, json.Unmarshal(body, &got), "decode payload")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL, "")
	testutil.RequireNoError(t, client.NotifyActionCreated(sampleAction()), "notify")

	testutil.RequireEqual(t, "application/json", contentType, "content type")
	testutil.RequireEqual(t, EventActionCreated, got.Event, "event name")
	testutil.RequireEqual(t, "jarvis-safety", got.Source, "default source")
	testutil.RequireEqual(t, "act-1", got.ActionID, "action id")
	testutil.RequireEqual(t, "high_risk", got.RiskLevel, "risk level")
	testutil.RequireEqual(t, ImportanceUrgent, got.Importance, "importance")
	testutil.RequireEqual(t, "agent@localhost", got.RequestedBy, "requested_by")
}

func TestWebhookExecutedCarriesExitCode(t *testing.T) {
	var got webhookEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		testutil.RequireNoError(t, json.Unmarshal(body, &got), "decode payload")
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL, "ops-bot")
	testutil.RequireNoError(t, client.NotifyActionExecuted(sampleAction(), 3), "notify")

	testutil.RequireEqual(t, EventActionExecuted, got.Event, "event name")
	testutil.RequireEqual(t, "ops-bot", got.Source, "source")
	testutil.RequireTrue(t, got.ExitCode != nil && *got.ExitCode == 3, "exit code")
}

func TestWebhookErrorStatusReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL, "")
	if err := client.NotifyActionApproved(sampleAction()); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestWebhookEmptyEndpointIsNoop(t *testing.T) {
	client := NewWebhookClient("", "")
	testutil.RequireNoError(t, client.NotifyActionRejected(sampleAction()), "empty endpoint")
}

func TestImportanceForRisk(t *testing.T) {
	cases := map[db.RiskLevel]string{
		db.RiskSafe:      ImportanceLow,
		db.RiskMedium:    ImportanceNormal,
		db.RiskHigh:      ImportanceUrgent,
		db.RiskForbidden: ImportanceUrgent,
	}
	for level, want := range cases {
		testutil.RequireEqual(t, want, importanceForRisk(level), string(level))
	}
}
