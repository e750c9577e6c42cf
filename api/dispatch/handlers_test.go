package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetcore/dispatchd/core/auditlog"
	coredispatcher "github.com/fleetcore/dispatchd/core/dispatcher"
	"github.com/fleetcore/dispatchd/core/executor"
	"github.com/fleetcore/dispatchd/core/model"
)

func newTestServer(t *testing.T, token string) (*Server, *executor.Executor) {
	t.Helper()
	exec := executor.New()
	t.Cleanup(exec.Close)
	d := coredispatcher.New(exec, noopBroadcaster{}, nil, nil, nil, nil, coredispatcher.Config{
		BiddingTimeWindow: 20 * time.Millisecond,
	})
	dir := t.TempDir()
	store, err := auditlog.NewJSONLStore(dir + "/audit.jsonl")
	if err != nil {
		t.Fatalf("new audit store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewServer(d, exec, store, token), exec
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastBidNotice(model.BidNotice) error { return nil }

func TestHandleTasksSubmitAndList(t *testing.T) {
	s, _ := newTestServer(t, "")
	h := s.Handler()

	body, _ := json.Marshal(submitTaskRequest{Description: model.TaskDescription{
		Type:  model.TaskClean,
		Clean: &model.CleanPayload{StartWaypoint: "A"},
	}})
	req := httptest.NewRequest(http.MethodPost, "/api/dispatch/tasks", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var sub submitTaskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sub.TaskId != "Clean0" {
		t.Fatalf("expected Clean0, got %s", sub.TaskId)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/dispatch/tasks", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list taskListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Active) != 1 || list.Active[0].TaskId != "Clean0" {
		t.Fatalf("expected one active task, got %+v", list.Active)
	}
}

func TestHandleTasksRequiresBearerToken(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/dispatch/tasks", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/dispatch/tasks", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHandleCancel(t *testing.T) {
	s, _ := newTestServer(t, "")
	h := s.Handler()

	body, _ := json.Marshal(submitTaskRequest{Description: model.TaskDescription{
		Type:  model.TaskClean,
		Clean: &model.CleanPayload{StartWaypoint: "A"},
	}})
	req := httptest.NewRequest(http.MethodPost, "/api/dispatch/tasks", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var sub submitTaskResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	cbody, _ := json.Marshal(cancelTaskRequest{TaskId: sub.TaskId})
	req = httptest.NewRequest(http.MethodPost, "/api/dispatch/tasks/cancel", bytes.NewReader(cbody))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var cr cancelTaskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &cr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !cr.Cancelled {
		t.Fatal("expected cancellation of a pending task to succeed")
	}
}

func TestHandleLogsQuery(t *testing.T) {
	s, _ := newTestServer(t, "")
	if err := s.audit.Append(context.Background(), auditlog.Record{
		Timestamp: time.Now(),
		TaskId:    "Clean0",
		FleetName: "fleet-a",
		State:     model.StateCompleted,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?fleet_name=fleet-a", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out []auditlog.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].TaskId != "Clean0" {
		t.Fatalf("unexpected result: %+v", out)
	}
}
