// Package fleet holds the in-memory vehicle directory shared by the HTTP
// handlers and the telemetry ingest task.
package fleet

import (
	"encoding/json"
	"sort"
	"time"
)

// Placeholder identity given to vehicles first seen through telemetry.
const Unknown = "unknown"

// The dummy waypoint always occupies id 0 of every flight plan.
const (
	DummyWaypointID   = 0
	DummyWaypointName = "dummy"
	DummyWaypointX    = "42.0"
	DummyWaypointY    = "42.0"
)

// Vehicle is a remotely controlled aircraft.
type Vehicle struct {
	ID           int                      `json:"id"`
	Name         string                   `json:"name"`
	Color        string                   `json:"color"`
	Waypoints    map[int]Waypoint         `json:"waypoints"`
	FlightBlocks map[int]FlightBlock      `json:"flight_blocks"`
	Messages     map[string]MessageRecord `json:"messages"`
}

// NewVehicle returns a vehicle with empty waypoint, block and message maps.
func NewVehicle(id int, name, color string) Vehicle {
	return Vehicle{
		ID:           id,
		Name:         name,
		Color:        color,
		Waypoints:    make(map[int]Waypoint),
		FlightBlocks: make(map[int]FlightBlock),
		Messages:     make(map[string]MessageRecord),
	}
}

// Waypoint is a named flight-plan position. Coordinates are kept as given.
type Waypoint struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	X    string `json:"x"`
	Y    string `json:"y"`
}

// DummyWaypoint returns the sentinel waypoint stored at id 0.
func DummyWaypoint() Waypoint {
	return Waypoint{ID: DummyWaypointID, Name: DummyWaypointName, X: DummyWaypointX, Y: DummyWaypointY}
}

// FlightBlock is a named flight-plan segment that can be jumped to.
type FlightBlock struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MessageRecord is the latest message of one type received from a vehicle.
type MessageRecord struct {
	Class       string          `json:"class"`
	Name        string          `json:"name"`
	FieldValues []any           `json:"field_values"`
	LastSeen    time.Time       `json:"last_seen"`
	Raw         json.RawMessage `json:"raw"`
}

// WaypointIDs returns the waypoint ids in ascending order.
func (v *Vehicle) WaypointIDs() []int {
	return sortedKeys(v.Waypoints)
}

// FlightBlockIDs returns the flight block ids in ascending order.
func (v *Vehicle) FlightBlockIDs() []int {
	return sortedKeys(v.FlightBlocks)
}

// MessageNames returns the known message names in sorted order.
func (v *Vehicle) MessageNames() []string {
	names := make([]string, 0, len(v.Messages))
	for name := range v.Messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Flatten returns the vehicle as one flat list: id, name, color, then
// (id, name, x, y) per waypoint and (id, name) per flight block.
func (v *Vehicle) Flatten() []any {
	out := make([]any, 0, 3+4*len(v.Waypoints)+2*len(v.FlightBlocks))
	out = append(out, v.ID, v.Name, v.Color)
	for _, id := range v.WaypointIDs() {
		wp := v.Waypoints[id]
		out = append(out, wp.ID, wp.Name, wp.X, wp.Y)
	}
	for _, id := range v.FlightBlockIDs() {
		fb := v.FlightBlocks[id]
		out = append(out, fb.ID, fb.Name)
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
