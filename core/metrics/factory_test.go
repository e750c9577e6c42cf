package metrics

import (
	"testing"

	"github.com/fleetcore/dispatchd/core/factory"
)

func TestNewMetricsSinkEmpty(t *testing.T) {
	sink, err := NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sink.(NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", sink)
	}
}

func TestNewMetricsSinkUnknownType(t *testing.T) {
	if _, err := NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}}); err == nil {
		t.Fatal("expected error for unknown sink type")
	}
}

func TestNewMetricsSinkMulti(t *testing.T) {
	name := "test-nop-multi"
	if err := RegisterMetricsSink(name, func(map[string]any) (MetricsSink, error) {
		return NopSink{}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	sink, err := NewMetricsSink([]factory.ModuleConfig{{Type: name}, {Type: name}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := sink.(*MultiSink); !ok {
		t.Fatalf("expected MultiSink, got %T", sink)
	}
}
