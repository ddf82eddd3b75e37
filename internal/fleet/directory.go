package fleet

import (
	"errors"
	"sync"

	"github.com/brunoga/deep"
)

var (
	ErrUnknownVehicle     = errors.New("unknown aircraft id")
	ErrUnknownFlightBlock = errors.New("unknown flightblock id")
	ErrUnknownWaypoint    = errors.New("unknown waypoint id")
	ErrUnknownMessage     = errors.New("unknown message")
	ErrNoClientVehicles   = errors.New("aircraft list is empty")
)

// entry guards one vehicle. Entries are fully built before they are
// published in the directory map.
type entry struct {
	mu sync.RWMutex
	v  Vehicle
}

// Directory is the registry of known vehicles. It is safe for concurrent
// use; locks are held per operation and never across a request.
type Directory struct {
	mu       sync.RWMutex
	vehicles map[int]*entry
	order    []int // Insertion order.

	clients *ClientViews

	// Callback for newly created vehicles. Called without locks held.
	onVehicleNew func(Vehicle)
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	d := &Directory{
		vehicles: make(map[int]*entry),
	}
	d.clients = newClientViews(d)
	return d
}

// OnVehicleNew sets a callback for when a vehicle is created.
func (d *Directory) OnVehicleNew(fn func(Vehicle)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onVehicleNew = fn
}

// Clients returns the client-view lists bound to this directory.
func (d *Directory) Clients() *ClientViews {
	return d.clients
}

// UpsertVehicle creates the vehicle if it does not exist yet. An existing
// vehicle is left untouched. Reports whether a vehicle was created.
func (d *Directory) UpsertVehicle(id int, name, color string) bool {
	return d.InsertVehicle(NewVehicle(id, name, color))
}

// InsertVehicle publishes a fully built vehicle, waypoints and flight
// blocks included, unless one with the same id exists. v is copied. Reports
// whether the vehicle was inserted.
func (d *Directory) InsertVehicle(v Vehicle) bool {
	v = deep.MustCopy(v)
	if v.Waypoints == nil {
		v.Waypoints = make(map[int]Waypoint)
	}
	if v.FlightBlocks == nil {
		v.FlightBlocks = make(map[int]FlightBlock)
	}
	if v.Messages == nil {
		v.Messages = make(map[string]MessageRecord)
	}

	d.mu.Lock()
	if _, exists := d.vehicles[v.ID]; exists {
		d.mu.Unlock()
		return false
	}
	d.vehicles[v.ID] = &entry{v: v}
	d.order = append(d.order, v.ID)
	fn := d.onVehicleNew
	d.mu.Unlock()

	if fn != nil {
		fn(Vehicle{ID: v.ID, Name: v.Name, Color: v.Color})
	}
	return true
}

func (d *Directory) lookup(id int) (*entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.vehicles[id]
	return e, ok
}

// Has reports whether the vehicle exists.
func (d *Directory) Has(id int) bool {
	_, ok := d.lookup(id)
	return ok
}

// Len returns the number of known vehicles.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Vehicle returns a copy of the vehicle, or false if it is unknown.
func (d *Directory) Vehicle(id int) (Vehicle, bool) {
	e, ok := d.lookup(id)
	if !ok {
		return Vehicle{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return deep.MustCopy(e.v), true
}

// VehicleIDs returns the known vehicle ids in directory order.
func (d *Directory) VehicleIDs() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]int, len(d.order))
	copy(ids, d.order)
	return ids
}

// update runs fn on the vehicle with its entry locked for writing.
func (d *Directory) update(id int, fn func(v *Vehicle)) error {
	e, ok := d.lookup(id)
	if !ok {
		return ErrUnknownVehicle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.v)
	return nil
}

// view runs fn on the vehicle with its entry locked for reading.
func (d *Directory) view(id int, fn func(v *Vehicle)) error {
	e, ok := d.lookup(id)
	if !ok {
		return ErrUnknownVehicle
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(&e.v)
	return nil
}

// AddWaypoint inserts or replaces a waypoint on an existing vehicle.
func (d *Directory) AddWaypoint(acID int, wp Waypoint) error {
	return d.update(acID, func(v *Vehicle) {
		v.Waypoints[wp.ID] = wp
	})
}

// AddFlightBlock inserts or replaces a flight block on an existing vehicle.
func (d *Directory) AddFlightBlock(acID int, fb FlightBlock) error {
	return d.update(acID, func(v *Vehicle) {
		v.FlightBlocks[fb.ID] = fb
	})
}

// AddMessage inserts or replaces the record for rec.Name.
func (d *Directory) AddMessage(acID int, rec MessageRecord) error {
	return d.update(acID, func(v *Vehicle) {
		v.Messages[rec.Name] = rec
	})
}

// SetColor overrides the display color of a vehicle.
func (d *Directory) SetColor(acID int, color string) error {
	return d.update(acID, func(v *Vehicle) {
		v.Color = color
	})
}

// Name returns the vehicle name.
func (d *Directory) Name(acID int) (string, bool) {
	var name string
	if err := d.view(acID, func(v *Vehicle) { name = v.Name }); err != nil {
		return "", false
	}
	return name, true
}

// HasWaypoint reports whether the vehicle has the waypoint.
func (d *Directory) HasWaypoint(acID, wpID int) bool {
	var ok bool
	_ = d.view(acID, func(v *Vehicle) { _, ok = v.Waypoints[wpID] })
	return ok
}

// HasFlightBlock reports whether the vehicle has the flight block.
func (d *Directory) HasFlightBlock(acID, fbID int) bool {
	var ok bool
	_ = d.view(acID, func(v *Vehicle) { _, ok = v.FlightBlocks[fbID] })
	return ok
}

// FindVehicleByName returns the first vehicle, in directory order, with
// the given name.
func (d *Directory) FindVehicleByName(name string) (int, bool) {
	for _, id := range d.VehicleIDs() {
		if n, ok := d.Name(id); ok && n == name {
			return id, true
		}
	}
	return 0, false
}

// FindFlightBlockByName returns the lowest flight block id with the given
// name on the vehicle.
func (d *Directory) FindFlightBlockByName(acID int, name string) (int, bool) {
	found, id := false, 0
	_ = d.view(acID, func(v *Vehicle) {
		for _, fbID := range v.FlightBlockIDs() {
			if v.FlightBlocks[fbID].Name == name {
				found, id = true, fbID
				return
			}
		}
	})
	return id, found
}

// FindWaypointByName returns the lowest waypoint id with the given name on
// the vehicle.
func (d *Directory) FindWaypointByName(acID int, name string) (int, bool) {
	found, id := false, 0
	_ = d.view(acID, func(v *Vehicle) {
		for _, wpID := range v.WaypointIDs() {
			if v.Waypoints[wpID].Name == name {
				found, id = true, wpID
				return
			}
		}
	})
	return id, found
}

// MessageNames returns the message types seen from a vehicle. The slice is
// empty, not nil, for a known vehicle that has not sent anything yet.
func (d *Directory) MessageNames(acID int) ([]string, error) {
	var names []string
	if err := d.view(acID, func(v *Vehicle) { names = v.MessageNames() }); err != nil {
		return nil, err
	}
	return names, nil
}

// Message returns a copy of the latest record of a message type.
func (d *Directory) Message(acID int, name string) (MessageRecord, error) {
	var (
		rec MessageRecord
		ok  bool
	)
	if err := d.view(acID, func(v *Vehicle) {
		rec, ok = v.Messages[name]
		if ok {
			rec = deep.MustCopy(rec)
		}
	}); err != nil {
		return MessageRecord{}, err
	}
	if !ok {
		return MessageRecord{}, ErrUnknownMessage
	}
	return rec, nil
}
