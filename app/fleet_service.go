package app

import (
	"context"
	"fmt"

	"github.com/fleetcore/dispatchd/config"
	"github.com/fleetcore/dispatchd/core/executor"
	corefleet "github.com/fleetcore/dispatchd/core/fleet"
	coremetrics "github.com/fleetcore/dispatchd/core/metrics"
	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/navgraph"
	"github.com/fleetcore/dispatchd/core/planner"
	"github.com/fleetcore/dispatchd/infra/logger"
	"github.com/fleetcore/dispatchd/infra/mqtt"
)

// FleetService hosts one fleet client node: a Fleet bidder/allocator
// behind its own executor, wired to the navigation graph named by its
// FleetConfig and to an in-memory TaskManager standing in for the robot
// execution layer.
type FleetService struct {
	Fleet *corefleet.Fleet

	exec   *executor.Executor
	client *mqtt.Client
	tm     *corefleet.MemoryTaskManager
}

// NewFleetService builds a fleet node for the named entry in cfg.Fleets.
// robotNames lists the robots this fleet node manages; a real deployment
// would discover these from the robot execution layer instead.
func NewFleetService(cfg *config.Config, fleetName string, robotNames ...string) (*FleetService, error) {
	var fc *config.FleetConfig
	for i := range cfg.Fleets {
		if cfg.Fleets[i].Name == fleetName {
			fc = &cfg.Fleets[i]
			break
		}
	}
	if fc == nil {
		return nil, fmt.Errorf("fleet %q not found in configuration", fleetName)
	}

	graph, err := navgraph.LoadMemoryGraph(fc.GraphPath)
	if err != nil {
		return nil, fmt.Errorf("load navigation graph: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}

	logg := logger.New(fmt.Sprintf("fleet-service[%s]", fleetName))
	tm := corefleet.NewMemoryTaskManager(planner.FinishState{Waypoint: "home", BatteryPct: 100}, robotNames...)

	exec := executor.New()
	var f *corefleet.Fleet
	client, err := mqtt.NewClient(cfg.MQTT, fleetName, mqtt.Handlers{
		OnBidNotice:       func(n model.BidNotice) { exec.Schedule(func() { f.HandleBidNotice(n) }) },
		OnDispatchRequest: func(r model.DispatchRequest) { exec.Schedule(func() { f.HandleDispatchRequest(r) }) },
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	f = corefleet.New(fleetName, graph, tm, client, client, client, logg, sink)
	f.SetPlanner(planner.NewGreedyPlanner())

	return &FleetService{Fleet: f, exec: exec, client: client, tm: tm}, nil
}

// Run blocks until ctx is cancelled. The fleet node is otherwise entirely
// event-driven, reacting to MQTT handlers scheduled onto its executor.
func (s *FleetService) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Close releases the fleet node's resources.
func (s *FleetService) Close() error {
	s.exec.Close()
	s.client.Disconnect()
	return nil
}
