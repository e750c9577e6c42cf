package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/fleetcore/dispatchd/core/model"
)

func TestJSONLStoreAppendAndQuery(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir + "/audit.jsonl")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()

	now := time.Now()
	recs := []Record{
		{Timestamp: now, TaskId: "Clean0", FleetName: "fleet-a", State: model.StateCompleted},
		{Timestamp: now.Add(time.Minute), TaskId: "Clean1", FleetName: "fleet-b", State: model.StateFailed},
	}
	for _, r := range recs {
		if err := store.Append(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	out, err := store.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}

	out, err = store.Query(context.Background(), Query{FleetName: "fleet-a"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].TaskId != "Clean0" {
		t.Fatalf("unexpected filtered result: %+v", out)
	}
}

func TestFromStatus(t *testing.T) {
	now := time.Now()
	status := model.TaskStatus{
		Profile: model.TaskProfile{
			TaskId:      "Clean3",
			Description: model.TaskDescription{Type: model.TaskClean},
		},
		FleetName: "fleet-a",
		RobotName: "robot-1",
		State:     model.StateCanceled,
	}
	rec := FromStatus(status, now)
	if rec.TaskId != "Clean3" || rec.FleetName != "fleet-a" || rec.RobotName != "robot-1" || rec.State != model.StateCanceled {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.Timestamp.Equal(now) {
		t.Fatalf("timestamp not carried through")
	}
}
