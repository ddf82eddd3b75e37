package fleet

import (
	"slices"
	"sync"
)

// ClientViews holds the ordered id lists that drive the tabular client
// displays. Lists are append-only and never contain duplicates.
//
// Flight block and waypoint ids are validated against the first visible
// vehicle: all vehicles are assumed to fly the same flight plan.
type ClientViews struct {
	dir *Directory

	mu           sync.RWMutex
	vehicles     []int
	flightBlocks []int
	waypoints    []int
}

func newClientViews(d *Directory) *ClientViews {
	return &ClientViews{
		dir:          d,
		vehicles:     []int{},
		flightBlocks: []int{},
		waypoints:    []int{},
	}
}

// Vehicles returns the visible vehicle ids.
func (c *ClientViews) Vehicles() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vehicles)
}

// FlightBlocks returns the visible flight block ids.
func (c *ClientViews) FlightBlocks() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.flightBlocks)
}

// Waypoints returns the visible waypoint ids.
func (c *ClientViews) Waypoints() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.waypoints)
}

// AddVehicle appends a known vehicle and returns the resulting list.
// Adding an id twice leaves the list unchanged.
func (c *ClientViews) AddVehicle(acID int) ([]int, error) {
	if !c.dir.Has(acID) {
		return nil, ErrUnknownVehicle
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.vehicles, acID) {
		c.vehicles = append(c.vehicles, acID)
	}
	return slices.Clone(c.vehicles), nil
}

// AddFlightBlock appends a flight block id known to the first visible
// vehicle and returns the resulting list.
func (c *ClientViews) AddFlightBlock(fbID int) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.vehicles) == 0 {
		return nil, ErrNoClientVehicles
	}
	if !c.dir.HasFlightBlock(c.vehicles[0], fbID) {
		return nil, ErrUnknownFlightBlock
	}
	if !slices.Contains(c.flightBlocks, fbID) {
		c.flightBlocks = append(c.flightBlocks, fbID)
	}
	return slices.Clone(c.flightBlocks), nil
}

// AddWaypoint appends a waypoint id known to the first visible vehicle and
// returns the resulting list.
func (c *ClientViews) AddWaypoint(wpID int) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.vehicles) == 0 {
		return nil, ErrNoClientVehicles
	}
	if !c.dir.HasWaypoint(c.vehicles[0], wpID) {
		return nil, ErrUnknownWaypoint
	}
	if !slices.Contains(c.waypoints, wpID) {
		c.waypoints = append(c.waypoints, wpID)
	}
	return slices.Clone(c.waypoints), nil
}
