package navgraph

import (
	"encoding/json"
	"os"
)

// memoryGraphFile is the on-disk shape a MemoryGraph is loaded from.
type memoryGraphFile struct {
	Waypoints []Waypoint   `json:"waypoints"`
	Docks     []DockParams `json:"docks"`
}

// LoadMemoryGraph reads a JSON file describing a fleet's waypoints and
// cleaning docks into a MemoryGraph.
func LoadMemoryGraph(path string) (*MemoryGraph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f memoryGraphFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	g := NewMemoryGraph()
	for _, w := range f.Waypoints {
		g.AddWaypoint(w)
	}
	for _, d := range f.Docks {
		g.SetDockParams(d)
	}
	return g, nil
}
