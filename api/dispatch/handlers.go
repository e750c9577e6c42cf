// Package dispatch exposes the dispatcher node's task submission,
// cancellation and listing operations, plus audit log queries, over HTTP.
package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetcore/dispatchd/core/auditlog"
	"github.com/fleetcore/dispatchd/core/dispatcher"
	"github.com/fleetcore/dispatchd/core/executor"
	"github.com/fleetcore/dispatchd/core/model"
)

// Server exposes a Dispatcher's operations over HTTP. Every handler hops
// onto exec to touch d, since Dispatcher methods other than the
// accessors documented as safe must run on its owning executor goroutine.
type Server struct {
	d     *dispatcher.Dispatcher
	exec  *executor.Executor
	audit auditlog.Store
	token string
}

// NewServer builds a Server. A non-empty token requires every request to
// carry "Authorization: Bearer <token>".
func NewServer(d *dispatcher.Dispatcher, exec *executor.Executor, audit auditlog.Store, token string) *Server {
	return &Server{d: d, exec: exec, audit: audit, token: token}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.token
}

// runSync schedules fn onto the executor and blocks until it completes.
func (s *Server) runSync(fn func()) {
	done := make(chan struct{})
	s.exec.Schedule(func() {
		fn()
		close(done)
	})
	<-done
}

// Handler returns the routed HTTP handler for the dispatch API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dispatch/tasks", s.handleTasks)
	mux.HandleFunc("/api/dispatch/tasks/cancel", s.handleCancel)
	mux.HandleFunc("/api/dispatch/logs", s.handleLogs)
	return mux
}

type submitTaskRequest struct {
	Description model.TaskDescription `json:"description"`
}

type submitTaskResponse struct {
	TaskId model.TaskId `json:"task_id"`
}

type taskListResponse struct {
	Active     []model.TaskSummary `json:"active"`
	Terminated []model.TaskSummary `json:"terminated"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req submitTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
			return
		}
		var id model.TaskId
		var err error
		s.runSync(func() { id, err = s.d.Submit(req.Description) })
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, submitTaskResponse{TaskId: id})
	case http.MethodGet:
		var resp taskListResponse
		s.runSync(func() {
			resp.Active = s.d.ActiveTasks()
			resp.Terminated = s.d.TerminatedTasks()
		})
		writeJSON(w, http.StatusOK, resp)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type cancelTaskRequest struct {
	TaskId model.TaskId `json:"task_id"`
}

type cancelTaskResponse struct {
	Cancelled bool `json:"cancelled"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}
	var ok bool
	s.runSync(func() { ok = s.d.Cancel(req.TaskId) })
	writeJSON(w, http.StatusOK, cancelTaskResponse{Cancelled: ok})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := auditlog.Query{FleetName: r.URL.Query().Get("fleet_name")}
	if t := r.URL.Query().Get("task_id"); t != "" {
		q.TaskId = model.TaskId(t)
	}
	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.Start = t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.End = t
		}
	}
	records, err := s.audit.Query(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
