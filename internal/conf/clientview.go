package conf

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"frc/internal/fleet"
	"frc/internal/log"
)

// clientViewDoc selects the vehicles, flight blocks and waypoints shown by
// the client views (frc_conf.xml).
type clientViewDoc struct {
	Aircraft []struct {
		ACID  string `xml:"ac_id,attr"`
		Name  string `xml:"name,attr"`
		Color string `xml:"color,attr"`
	} `xml:"aircraft"`
	FlightBlocks []struct {
		FBID string `xml:"fb_id,attr"`
		Name string `xml:"name,attr"`
	} `xml:"flightblock"`
	Waypoints []struct {
		WPID string `xml:"wp_id,attr"`
		Name string `xml:"name,attr"`
	} `xml:"waypoint"`
}

// LoadClientView reads the optional client-view document at path and
// appends every entry it can resolve to d's client views. A missing file
// is not an error. Entries that cannot be resolved are logged and skipped.
//
// Flight blocks and waypoints given by name are resolved against the last
// vehicle resolved in the document (initially id 0). This assumes every
// vehicle flies the same flight plan.
func LoadClientView(path string, d *fleet.Directory, logger *log.Logger) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("client view file not found, no client views preloaded", "path", path)
		return nil
	}
	if err != nil {
		return &StartupError{Path: path, Err: err}
	}

	var doc clientViewDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return &StartupError{Path: path, Err: err}
	}

	clients := d.Clients()
	cached := 0

	for _, ac := range doc.Aircraft {
		acID, ok, err := optionalID(ac.ACID)
		if err != nil {
			return &StartupError{Path: path, Err: fmt.Errorf("aircraft ac_id: %w", err)}
		}
		if ac.Name != "" {
			acID, ok = d.FindVehicleByName(ac.Name)
			if !ok {
				logger.Warn("client view: aircraft not found", "name", ac.Name)
				continue
			}
		}
		if !ok {
			logger.Warn("client view: aircraft entry has neither ac_id nor name")
			continue
		}

		if ac.Color != "" {
			if err := d.SetColor(acID, ac.Color); err != nil {
				logger.Warn("client view: color override skipped", "ac_id", acID, "error", err)
			}
		}
		if _, err := clients.AddVehicle(acID); err != nil {
			logger.Warn("client view: aircraft skipped", "ac_id", acID, "error", err)
		}
		cached = acID
	}

	for _, fb := range doc.FlightBlocks {
		fbID, ok, err := optionalID(fb.FBID)
		if err != nil {
			return &StartupError{Path: path, Err: fmt.Errorf("flightblock fb_id: %w", err)}
		}
		if fb.Name != "" {
			fbID, ok = d.FindFlightBlockByName(cached, fb.Name)
			if !ok {
				logger.Warn("client view: flightblock not found", "name", fb.Name, "ac_id", cached)
				continue
			}
		}
		if !ok {
			logger.Warn("client view: flightblock entry has neither fb_id nor name")
			continue
		}
		if _, err := clients.AddFlightBlock(fbID); err != nil {
			logger.Warn("client view: flightblock skipped", "fb_id", fbID, "error", err)
		}
	}

	for _, wp := range doc.Waypoints {
		wpID, ok, err := optionalID(wp.WPID)
		if err != nil {
			return &StartupError{Path: path, Err: fmt.Errorf("waypoint wp_id: %w", err)}
		}
		if wp.Name != "" {
			wpID, ok = d.FindWaypointByName(cached, wp.Name)
			if !ok {
				logger.Warn("client view: waypoint not found", "name", wp.Name, "ac_id", cached)
				continue
			}
		}
		if !ok {
			logger.Warn("client view: waypoint entry has neither wp_id nor name")
			continue
		}
		if _, err := clients.AddWaypoint(wpID); err != nil {
			logger.Warn("client view: waypoint skipped", "wp_id", wpID, "error", err)
		}
	}

	return nil
}

// optionalID parses an id attribute that may be absent.
func optionalID(s string) (int, bool, error) {
	if strings.TrimSpace(s) == "" {
		return 0, false, nil
	}
	id, err := parseID(s)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
