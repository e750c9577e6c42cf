// Package navgraph defines the navigation-graph dependency a fleet uses to
// validate bid notices and build typed planning requests. Besides the
// fixed query surface the fleet allocator needs, it provides an in-memory
// Graph, a JSON loader for it, and a cleaning-trajectory helper that
// returns the dock path unchanged; it does not build graphs from maps.
package navgraph

import (
	"errors"
	"sync"
	"time"
)

// Pose is a 2D pose with heading, matching the graph's native coordinate
// frame.
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// Waypoint is a named location on the graph.
type Waypoint struct {
	Name string `json:"name"`
	Pose Pose   `json:"pose"`
}

// DockParams describes the cleaning dock reachable from a given start
// waypoint: the path of poses a robot follows to reach the dock, and the
// waypoint it finishes at.
type DockParams struct {
	StartWaypoint  string  `json:"start_waypoint"`
	Path           []Pose  `json:"path"`
	FinishWaypoint string  `json:"finish_waypoint"`
}

// ErrUnknownWaypoint is returned when a waypoint name has no entry in the
// graph.
var ErrUnknownWaypoint = errors.New("navgraph: unknown waypoint")

// ErrNoDockParams is returned when no dock is configured for a start
// waypoint.
var ErrNoDockParams = errors.New("navgraph: no dock parameters for waypoint")

// Graph is the fixed query surface a fleet needs from its navigation
// graph. Construction of the underlying graph (reading a map, building an
// adjacency structure) is external to the dispatch core.
type Graph interface {
	// Waypoint looks up a named waypoint. It returns ErrUnknownWaypoint if
	// absent.
	Waypoint(name string) (Waypoint, error)
	// DockParams looks up the cleaning dock reachable from startWaypoint.
	// It returns ErrNoDockParams if none is configured.
	DockParams(startWaypoint string) (DockParams, error)
}

// MemoryGraph is an in-memory Graph used by tests and small deployments.
// Docks are added with SetDockParams, which LoadMemoryGraph calls for each
// dock in the graph file.
type MemoryGraph struct {
	mu        sync.RWMutex
	waypoints map[string]Waypoint
	docks     map[string]DockParams
}

// NewMemoryGraph returns an empty MemoryGraph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		waypoints: make(map[string]Waypoint),
		docks:     make(map[string]DockParams),
	}
}

// AddWaypoint registers a waypoint on the graph.
func (g *MemoryGraph) AddWaypoint(w Waypoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waypoints[w.Name] = w
}

// SetDockParams configures the dock reachable from a start waypoint,
// mirroring the dock-summary subscription described in §6.
func (g *MemoryGraph) SetDockParams(d DockParams) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docks[d.StartWaypoint] = d
}

func (g *MemoryGraph) Waypoint(name string) (Waypoint, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.waypoints[name]
	if !ok {
		return Waypoint{}, ErrUnknownWaypoint
	}
	return w, nil
}

func (g *MemoryGraph) DockParams(startWaypoint string) (DockParams, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.docks[startWaypoint]
	if !ok {
		return DockParams{}, ErrNoDockParams
	}
	return d, nil
}

// InterpolateCleaningTrajectory builds the sequence of poses a robot
// follows to clean from the given dock path, starting at startTime. It
// returns an empty trajectory if the dock has no path, which the fleet
// treats as a validation failure per §4.3 step 6.
func InterpolateCleaningTrajectory(path []Pose, startTime time.Time, speedMPS float64) []Pose {
	if len(path) == 0 || speedMPS <= 0 {
		return nil
	}
	// A real implementation would resample by distance/speed using vehicle
	// traits; the dispatch core only needs a non-empty trajectory to
	// proceed, so the configured path is returned verbatim.
	out := make([]Pose, len(path))
	copy(out, path)
	return out
}
