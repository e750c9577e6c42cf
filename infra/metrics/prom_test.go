package metrics

import (
	"testing"
	"time"

	coremetrics "github.com/fleetcore/dispatchd/core/metrics"
	"github.com/fleetcore/dispatchd/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

func TestPromSinkRecordsTaskEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.RecordTaskEvent(coremetrics.TaskEvent{
		TaskId:    "Clean0",
		TaskType:  model.TaskClean,
		FleetName: "fleet-a",
		State:     model.StateCompleted,
		Time:      time.Now(),
	}); err != nil {
		t.Fatalf("record task event: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "dispatch_task_events_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected dispatch_task_events_total to be registered")
	}
}

func TestPromSinkRecordsQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	rec, ok := sink.(coremetrics.QueueDepthRecorder)
	if !ok {
		t.Fatal("expected PromSink to implement QueueDepthRecorder")
	}
	if err := rec.RecordQueueDepth(3, 7); err != nil {
		t.Fatalf("record queue depth: %v", err)
	}
}
