package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
)

//go:embed templates/*.html
var templateFS embed.FS

// Fixed column counts of the guided and hover panels.
const (
	guidedColumns = 10
	hoverColumns  = 8
)

type views struct {
	flightBlock   *template.Template
	guided        *template.Template
	waypoint      *template.Template
	waypointHover *template.Template
}

func loadViews() *views {
	parse := func(name string) *template.Template {
		return template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return &views{
		flightBlock:   parse("flightblock.html"),
		guided:        parse("guided.html"),
		waypoint:      parse("waypoint.html"),
		waypointHover: parse("waypointhover.html"),
	}
}

// page is the data every view renders.
type page struct {
	Title    string
	Host     string
	Port     int
	Base     string // http://host:port
	ColCount int
	Cols     []column
	Rows     []row
}

type column struct {
	ID    int
	Label string
	Path  string // Broadcast command for the whole column, if any.
}

type row struct {
	ACID  int
	Name  string
	Color string
	Cells []cell
}

type cell struct {
	ID    int
	Label string
	Path  string
}

// guidedPreset is one button of the guided panel. Setpoints are offsets
// from the current position (flags 0x0D: xy, z and yaw relative).
type guidedPreset struct {
	label string
	mode  int // Non-zero: switch the mode instead of sending a setpoint.
	x, y  float64
}

const offsetFlags = 0x0D

var guidedPresets = [guidedColumns]guidedPreset{
	{label: "NAV", mode: 13},
	{label: "GUIDED", mode: 19},
	{label: "N", x: 10},
	{label: "NE", x: 7.07, y: 7.07},
	{label: "E", y: 10},
	{label: "SE", x: -7.07, y: 7.07},
	{label: "S", x: -10},
	{label: "SW", x: -7.07, y: -7.07},
	{label: "W", y: -10},
	{label: "NW", x: 7.07, y: -7.07},
}

// Climb (negative down) or descend by these many metres.
var hoverSteps = [hoverColumns]float64{-1, -2, -5, -10, 1, 2, 5, 10}

func (s *Server) newPage(title string) *page {
	p := &page{
		Title: title,
		Host:  s.cfg.IP,
		Port:  s.cfg.Port,
		Base:  "http://" + s.Addr(),
	}
	for _, acID := range s.dir.Clients().Vehicles() {
		rw := row{ACID: acID, Name: "unknown", Color: "unknown"}
		if v, ok := s.dir.Vehicle(acID); ok {
			rw.Name, rw.Color = v.Name, v.Color
		}
		p.Rows = append(p.Rows, rw)
	}
	return p
}

// firstVehicle returns the vehicle whose flight plan labels the columns.
func (s *Server) firstVehicle(p *page) (int, bool) {
	if len(p.Rows) == 0 {
		return 0, false
	}
	return p.Rows[0].ACID, true
}

func (s *Server) handleShowFlightBlock(w http.ResponseWriter, r *http.Request) {
	p := s.newPage("Flight blocks")
	ids := s.dir.Clients().FlightBlocks()
	p.ColCount = len(ids)

	first, hasFirst := s.firstVehicle(p)
	labels := map[int]string{}
	if v, ok := s.dir.Vehicle(first); hasFirst && ok {
		for id, fb := range v.FlightBlocks {
			labels[id] = fb.Name
		}
	}

	for _, id := range ids {
		p.Cols = append(p.Cols, column{ID: id, Label: labelOr(labels[id], id), Path: fmt.Sprintf("/flightblock/%d", id)})
	}
	for i := range p.Rows {
		for _, c := range p.Cols {
			p.Rows[i].Cells = append(p.Rows[i].Cells, cell{
				ID:    c.ID,
				Label: c.Label,
				Path:  fmt.Sprintf("/flightblock/%d/%d", p.Rows[i].ACID, c.ID),
			})
		}
	}
	s.render(w, s.views.flightBlock, p)
}

func (s *Server) handleShowGuided(w http.ResponseWriter, r *http.Request) {
	p := s.newPage("Guided")
	p.ColCount = guidedColumns

	for i, g := range guidedPresets {
		c := column{ID: i, Label: g.label}
		if g.mode != 0 {
			c.Path = fmt.Sprintf("/guidance/setmode/%d", g.mode)
		} else {
			c.Path = fmt.Sprintf("/guidance/%d/%g/%g/0/0", offsetFlags, g.x, g.y)
		}
		p.Cols = append(p.Cols, c)
	}
	for i := range p.Rows {
		acID := p.Rows[i].ACID
		for j, g := range guidedPresets {
			path := fmt.Sprintf("/guidance/%d/%d/%g/%g/0/0", acID, offsetFlags, g.x, g.y)
			if g.mode != 0 {
				path = fmt.Sprintf("/guidance/setmode/%d/%d", acID, g.mode)
			}
			p.Rows[i].Cells = append(p.Rows[i].Cells, cell{ID: j, Label: g.label, Path: path})
		}
	}
	s.render(w, s.views.guided, p)
}

func (s *Server) handleShowWaypoint(w http.ResponseWriter, r *http.Request) {
	p := s.newPage("Waypoints")
	ids := s.dir.Clients().Waypoints()
	p.ColCount = len(ids)

	first, hasFirst := s.firstVehicle(p)
	labels := map[int]string{}
	if v, ok := s.dir.Vehicle(first); hasFirst && ok {
		for id, wp := range v.Waypoints {
			labels[id] = wp.Name
		}
	}

	for _, id := range ids {
		p.Cols = append(p.Cols, column{ID: id, Label: labelOr(labels[id], id), Path: fmt.Sprintf("/waypoint/%d", id)})
	}
	for i := range p.Rows {
		for _, c := range p.Cols {
			p.Rows[i].Cells = append(p.Rows[i].Cells, cell{
				ID:    c.ID,
				Label: c.Label,
				Path:  fmt.Sprintf("/waypoint/%d/%d", p.Rows[i].ACID, c.ID),
			})
		}
	}
	s.render(w, s.views.waypoint, p)
}

func (s *Server) handleShowWaypointHover(w http.ResponseWriter, r *http.Request) {
	p := s.newPage("Hover")
	p.ColCount = hoverColumns

	for i, dz := range hoverSteps {
		p.Cols = append(p.Cols, column{ID: i, Label: hoverLabel(dz), Path: fmt.Sprintf("/guidance/%d/0/0/%g/0", offsetFlags, dz)})
	}
	for i := range p.Rows {
		for j, dz := range hoverSteps {
			p.Rows[i].Cells = append(p.Rows[i].Cells, cell{
				ID:    j,
				Label: hoverLabel(dz),
				Path:  fmt.Sprintf("/guidance/%d/%d/0/0/%g/0", p.Rows[i].ACID, offsetFlags, dz),
			})
		}
	}
	s.render(w, s.views.waypointHover, p)
}

func hoverLabel(dz float64) string {
	if dz < 0 {
		return fmt.Sprintf("Up %gm", -dz)
	}
	return fmt.Sprintf("Down %gm", dz)
}

func labelOr(label string, id int) string {
	if label == "" {
		return strconv.Itoa(id)
	}
	return label
}

func (s *Server) render(w http.ResponseWriter, t *template.Template, p *page) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		s.logger.Error("render view", "view", p.Title, "error", err)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
