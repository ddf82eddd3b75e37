// Package conf loads the static fleet configuration and the client-view
// selection into a fleet.Directory.
package conf

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"frc/internal/fleet"
)

// StartupError reports a fleet or flight-plan document that cannot be
// used. It is fatal: the gateway must not start serving.
type StartupError struct {
	Path string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// ConfDir returns the configuration directory of a source tree root.
func ConfDir(root string) string {
	return filepath.Join(root, "conf")
}

// fleetDoc is the fleet definition (conf.xml).
type fleetDoc struct {
	Aircraft []aircraftDecl `xml:"aircraft"`
}

type aircraftDecl struct {
	ACID       string `xml:"ac_id,attr"`
	Name       string `xml:"name,attr"`
	FlightPlan string `xml:"flight_plan,attr"`
	Airframe   string `xml:"airframe,attr"`
	GUIColor   string `xml:"gui_color,attr"`
}

// FlightPlan is the subset of a flight plan the gateway needs, in
// document order.
type FlightPlan struct {
	Waypoints []fleet.Waypoint
	Blocks    []fleet.FlightBlock
}

// LoadFleet reads <confDir>/conf.xml and every referenced flight plan and
// adds the declared vehicles to d. Each vehicle gets the dummy waypoint at
// id 0, its flight-plan waypoints at ids 1..N and its blocks at ids 0..M-1.
// It returns the ids of the loaded vehicles in declaration order.
func LoadFleet(confDir string, d *fleet.Directory) ([]int, error) {
	confPath := filepath.Join(confDir, "conf.xml")
	var doc fleetDoc
	if err := decodeFile(confPath, &doc); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(doc.Aircraft))
	for _, ac := range doc.Aircraft {
		id, err := parseID(ac.ACID)
		if err != nil {
			return nil, &StartupError{Path: confPath, Err: fmt.Errorf("aircraft %q: ac_id: %w", ac.Name, err)}
		}
		if ac.FlightPlan == "" {
			return nil, &StartupError{Path: confPath, Err: fmt.Errorf("aircraft %d: no flight_plan", id)}
		}

		fpPath := filepath.Join(confDir, ac.FlightPlan)
		fp, err := ParseFlightPlanFile(fpPath)
		if err != nil {
			return nil, err
		}

		if !d.InsertVehicle(buildVehicle(id, ac.Name, ac.GUIColor, fp)) {
			return nil, &StartupError{Path: confPath, Err: fmt.Errorf("duplicate ac_id %d", id)}
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func buildVehicle(id int, name, color string, fp *FlightPlan) fleet.Vehicle {
	v := fleet.NewVehicle(id, name, color)
	v.Waypoints[fleet.DummyWaypointID] = fleet.DummyWaypoint()
	for _, wp := range fp.Waypoints {
		v.Waypoints[wp.ID] = wp
	}
	for _, fb := range fp.Blocks {
		v.FlightBlocks[fb.ID] = fb
	}
	return v
}

// ParseFlightPlanFile parses the flight plan at path.
func ParseFlightPlanFile(path string) (*FlightPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &StartupError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	fp, err := ParseFlightPlan(f)
	if err != nil {
		return nil, &StartupError{Path: path, Err: err}
	}
	return fp, nil
}

// ParseFlightPlan collects every <waypoint> and <block> element, at any
// depth, in document order. Waypoints are numbered from 1 because id 0 is
// reserved for the dummy waypoint; blocks are numbered from 0.
func ParseFlightPlan(r io.Reader) (*FlightPlan, error) {
	dec := xml.NewDecoder(r)
	fp := &FlightPlan{}
	sawRoot := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true

		switch se.Name.Local {
		case "waypoint":
			fp.Waypoints = append(fp.Waypoints, fleet.Waypoint{
				ID:   len(fp.Waypoints) + 1,
				Name: attr(se, "name"),
				X:    attr(se, "x"),
				Y:    attr(se, "y"),
			})
		case "block":
			fp.Blocks = append(fp.Blocks, fleet.FlightBlock{
				ID:   len(fp.Blocks),
				Name: attr(se, "name"),
			})
		}
	}

	if !sawRoot {
		return nil, errors.New("empty document")
	}
	return fp, nil
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parseID(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return &StartupError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	if err := xml.NewDecoder(f).Decode(v); err != nil {
		return &StartupError{Path: path, Err: err}
	}
	return nil
}
