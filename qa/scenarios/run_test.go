package scenarios

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetcore/dispatchd/core/model"
)

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario fixtures found under testdata/")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-such-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	tmp, err := os.CreateTemp(t.TempDir(), "bad*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmp.WriteString(":"); err != nil {
		t.Fatal(err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(tmp.Name()); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestBuildDescription(t *testing.T) {
	desc := buildDescription(SubmitSpec{
		TaskType: "clean",
		Priority: "high",
		Clean:    &CleanSpec{StartWaypoint: "A"},
	})
	if desc.Type != model.TaskClean || desc.Priority != model.PriorityHigh {
		t.Fatalf("unexpected description: %+v", desc)
	}
	if desc.Clean == nil || desc.Clean.StartWaypoint != "A" {
		t.Fatalf("expected clean payload to carry start waypoint, got %+v", desc.Clean)
	}
}

func TestParseState(t *testing.T) {
	if _, ok := parseState("bogus"); ok {
		t.Fatal("expected bogus state to be rejected")
	}
	if s, ok := parseState("completed"); !ok || s != model.StateCompleted {
		t.Fatalf("expected completed to parse, got %v ok=%v", s, ok)
	}
}
