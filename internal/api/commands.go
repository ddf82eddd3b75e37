package api

import (
	"net/http"

	"frc/internal/command"
)

func (s *Server) handleGuidanceIndex(w http.ResponseWriter, r *http.Request) {
	s.banner(w, "Guidance: All\n")
}

func (s *Server) handleWaypointIndex(w http.ResponseWriter, r *http.Request) {
	s.banner(w, "Waypoint: All\n")
}

func (s *Server) banner(w http.ResponseWriter, text string) {
	if !s.cfg.Verbose {
		text = ""
	}
	writeText(w, http.StatusOK, text)
}

// Set auto2 mode to GUIDED (19) or NAV (13).
func (s *Server) handleSetModeAll(w http.ResponseWriter, r *http.Request) {
	value, ok := intParam(w, r, "value")
	if !ok {
		return
	}
	writeReport(w, s.cmd.SetModeAll(r.Context(), value))
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	acID, ok := intParam(w, r, "ac_id")
	if !ok {
		return
	}
	value, ok := intParam(w, r, "value")
	if !ok {
		return
	}
	writeReport(w, s.cmd.SetMode(r.Context(), acID, value))
}

func (s *Server) handleGuidedAll(w http.ResponseWriter, r *http.Request) {
	sp, ok := setpointParams(w, r)
	if !ok {
		return
	}
	writeReport(w, s.cmd.GuidedAll(r.Context(), sp))
}

func (s *Server) handleGuided(w http.ResponseWriter, r *http.Request) {
	acID, ok := intParam(w, r, "ac_id")
	if !ok {
		return
	}
	sp, ok := setpointParams(w, r)
	if !ok {
		return
	}
	writeReport(w, s.cmd.Guided(r.Context(), acID, sp))
}

func setpointParams(w http.ResponseWriter, r *http.Request) (command.Setpoint, bool) {
	var sp command.Setpoint
	var ok bool
	if sp.Flags, ok = intParam(w, r, "flag"); !ok {
		return sp, false
	}
	for _, p := range []struct {
		name string
		dst  *float64
	}{{"x", &sp.X}, {"y", &sp.Y}, {"z", &sp.Z}, {"yaw", &sp.Yaw}} {
		if *p.dst, ok = floatParam(w, r, p.name); !ok {
			return sp, false
		}
	}
	return sp, true
}

func (s *Server) handleMoveWaypointAll(w http.ResponseWriter, r *http.Request) {
	mv, ok := waypointParams(w, r)
	if !ok {
		return
	}
	writeReport(w, s.cmd.MoveWaypointAll(r.Context(), mv))
}

func (s *Server) handleMoveWaypoint(w http.ResponseWriter, r *http.Request) {
	acID, ok := intParam(w, r, "ac_id")
	if !ok {
		return
	}
	mv, ok := waypointParams(w, r)
	if !ok {
		return
	}
	writeReport(w, s.cmd.MoveWaypoint(r.Context(), acID, mv))
}

func waypointParams(w http.ResponseWriter, r *http.Request) (command.WaypointMove, bool) {
	var mv command.WaypointMove
	var ok bool
	if mv.WPID, ok = intParam(w, r, "wp_id"); !ok {
		return mv, false
	}
	if mv.Lat, ok = floatParam(w, r, "lat"); !ok {
		return mv, false
	}
	if mv.Lon, ok = floatParam(w, r, "lon"); !ok {
		return mv, false
	}
	if mv.Alt, ok = floatParam(w, r, "alt"); !ok {
		return mv, false
	}
	return mv, true
}

func (s *Server) handleJumpToBlockAll(w http.ResponseWriter, r *http.Request) {
	fbID, ok := intParam(w, r, "fb_id")
	if !ok {
		return
	}
	writeReport(w, s.cmd.JumpToBlockAll(r.Context(), fbID))
}

func (s *Server) handleJumpToBlock(w http.ResponseWriter, r *http.Request) {
	acID, ok := intParam(w, r, "ac_id")
	if !ok {
		return
	}
	fbID, ok := intParam(w, r, "fb_id")
	if !ok {
		return
	}
	writeReport(w, s.cmd.JumpToBlock(r.Context(), acID, fbID))
}

// writeReport answers a command with its trace and skip lines. Skipped
// vehicles do not change the status; delivery is never acknowledged.
func writeReport(w http.ResponseWriter, rep *command.Report) {
	writeText(w, http.StatusOK, rep.Text())
}
