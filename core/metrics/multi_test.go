package metrics

import "testing"

type recordSink struct {
	count int
}

func (r *recordSink) RecordTaskEvent(TaskEvent) error { r.count++; return nil }

func TestMultiSinkForwards(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordTaskEvent(TaskEvent{}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if s1.count != 1 || s2.count != 1 {
		t.Fatalf("event not forwarded to both sinks: %+v %+v", s1, s2)
	}
}

func TestMultiSinkOptionalRecorders(t *testing.T) {
	m := NewMultiSink(NopSink{})
	if err := m.RecordAuction(AuctionEvent{}); err != nil {
		t.Fatalf("record auction: %v", err)
	}
	if err := m.RecordQueueDepth(1, 2); err != nil {
		t.Fatalf("record queue depth: %v", err)
	}
}
