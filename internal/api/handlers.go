package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ScarletRedJoker/jarvis-safety/internal/approval"
	"github.com/ScarletRedJoker/jarvis-safety/internal/core"
	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
)

// envelope is the uniform JSON response shape.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, db.ErrActionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, approval.ErrForbiddenCommand),
		errors.Is(err, approval.ErrCheckpointRequired):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 50)
	offset := intParam(q.Get("offset"), 0)

	actions, err := s.svc.ListPending(identityFrom(r), approval.ListOptions{
		ActionType: q.Get("action_type"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if actions == nil {
		actions = []*db.Action{}
	}

	writeData(w, http.StatusOK, map[string]any{
		"actions": actions,
		"count":   len(actions),
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActionType         string         `json:"action_type"`
		Command            string         `json:"command"`
		Description        string         `json:"description"`
		ExpiresInHours     float64        `json:"expires_in_hours"`
		Metadata           map[string]any `json:"metadata"`
		RollbackCommand    string         `json:"rollback_command"`
		RequiresCheckpoint bool           `json:"requires_checkpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	action, err := s.svc.Create(identityFrom(r), approval.CreateOptions{
		ActionType:         body.ActionType,
		Command:            body.Command,
		Description:        body.Description,
		ExpiresIn:          time.Duration(body.ExpiresInHours * float64(time.Hour)),
		Metadata:           body.Metadata,
		RollbackCommand:    body.RollbackCommand,
		RequiresCheckpoint: body.RequiresCheckpoint,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusCreated, action)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	action, err := s.svc.Get(identityFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, action)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExecuteImmediately bool `json:"execute_immediately"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	result, err := s.svc.Approve(r.Context(), identityFrom(r), mux.Vars(r)["id"], approval.ApproveOptions{
		ExecuteImmediately: body.ExecuteImmediately,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	action, err := s.svc.Reject(identityFrom(r), mux.Vars(r)["id"], body.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, action)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	action, err := s.svc.Cancel(identityFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, action)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CheckpointData map[string]any `json:"checkpoint_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	action, err := s.svc.AttachCheckpoint(identityFrom(r), mux.Vars(r)["id"], body.CheckpointData)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, action)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetStats(identityFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command     string  `json:"command"`
		TimeoutSecs float64 `json:"timeout_secs"`
		ActionType  string  `json:"action_type"`
		Description string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	result := s.executor.Execute(r.Context(), core.ExecRequest{
		Command:     body.Command,
		Actor:       identityFrom(r),
		Mode:        db.ModeExecute,
		Timeout:     time.Duration(body.TimeoutSecs * float64(time.Second)),
		ActionType:  body.ActionType,
		Description: body.Description,
	})
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	result := s.executor.DryRun(r.Context(), body.Command, identityFrom(r))
	writeData(w, http.StatusOK, result)
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
