// Package scenarios runs the end-to-end dispatch scenarios against an
// in-process dispatcher and fleet(s), wired the way a live deployment
// wires them but over direct executor scheduling instead of MQTT.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is the YAML fixture shape for one end-to-end run.
type Scenario struct {
	Name            string     `yaml:"name"`
	Description     string     `yaml:"description,omitempty"`
	BiddingWindowMS int        `yaml:"bidding_window_ms"`
	TerminatedMax   int        `yaml:"terminated_max,omitempty"`
	Fleets          []FleetDef `yaml:"fleets,omitempty"`
	Steps           []Step     `yaml:"steps"`
	Expect          Expect     `yaml:"expect"`
}

// FleetDef describes one fleet node and the slice of navigation graph it
// needs for the scenario's tasks.
type FleetDef struct {
	Name      string        `yaml:"name"`
	Robots    []string      `yaml:"robots"`
	Waypoints []WaypointDef `yaml:"waypoints,omitempty"`
	Docks     []DockDef     `yaml:"docks,omitempty"`
}

type WaypointDef struct {
	Name string `yaml:"name"`
}

type DockDef struct {
	StartWaypoint  string `yaml:"start_waypoint"`
	FinishWaypoint string `yaml:"finish_waypoint"`
	PathLength     int    `yaml:"path_length,omitempty"`
}

// Step is one action in a scenario's script. Exactly one of the action
// fields is normally populated per step.
type Step struct {
	Submit          *SubmitSpec       `yaml:"submit,omitempty"`
	Cancel          *CancelSpec       `yaml:"cancel,omitempty"`
	ReportStatus    *ReportStatusSpec `yaml:"report_status,omitempty"`
	WaitMS          int               `yaml:"wait_ms,omitempty"`
	WaitAuction     bool              `yaml:"wait_auction,omitempty"`
	ExpectTaskID    string            `yaml:"expect_task_id,omitempty"`
	ExpectError     bool              `yaml:"expect_error,omitempty"`
	ExpectCancelled *bool             `yaml:"expect_cancelled,omitempty"`
}

type SubmitSpec struct {
	TaskType string        `yaml:"task_type"`
	Priority string        `yaml:"priority,omitempty"`
	Clean    *CleanSpec    `yaml:"clean,omitempty"`
	Delivery *DeliverySpec `yaml:"delivery,omitempty"`
	Loop     *LoopSpec     `yaml:"loop,omitempty"`
}

type CleanSpec struct {
	StartWaypoint string `yaml:"start_waypoint"`
}

type DeliverySpec struct {
	PickupPlace     string `yaml:"pickup_place"`
	PickupDispenser string `yaml:"pickup_dispenser"`
	DropoffPlace    string `yaml:"dropoff_place"`
	DropoffIngestor string `yaml:"dropoff_ingestor"`
}

type LoopSpec struct {
	StartName  string `yaml:"start_name"`
	FinishName string `yaml:"finish_name"`
	NumLoops   int    `yaml:"num_loops"`
}

type CancelSpec struct {
	TaskIndex int `yaml:"task_index"`
}

type ReportStatusSpec struct {
	Fleet      string `yaml:"fleet"`
	TaskIndex  int    `yaml:"task_index"`
	State      string `yaml:"state"`
	RobotName  string `yaml:"robot_name,omitempty"`
	FailReason string `yaml:"fail_reason,omitempty"`
}

// ExpectTerminal asserts the final state of one submitted task.
type ExpectTerminal struct {
	TaskIndex int    `yaml:"task_index"`
	State     string `yaml:"state"`
}

// Expect is the scenario's final assertion block.
type Expect struct {
	ActiveCount     *int             `yaml:"active_count,omitempty"`
	Terminal        []ExpectTerminal `yaml:"terminal,omitempty"`
	TerminalPresent []int            `yaml:"terminal_present,omitempty"`
	TerminalAbsent  []int            `yaml:"terminal_absent,omitempty"`
}

// Load reads and decodes a scenario fixture.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
