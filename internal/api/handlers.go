package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"frc/internal/fleet"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	text := "Flying Robot Commander Server Running...."
	if s.cfg.Verbose {
		text += "\n"
	}
	writeText(w, http.StatusOK, text)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "About: Flying Robot Commander Server v"+Version+"\n")
}

func (s *Server) handleAircraftAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dir.VehicleIDs())
}

func (s *Server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	acID, ok := intParam(w, r, "ac_id")
	if !ok {
		return
	}
	v, found := s.dir.Vehicle(acID)
	if !found {
		writeError(w, http.StatusNotFound, "unknown id")
		return
	}
	writeJSON(w, http.StatusOK, v.Flatten())
}

func (s *Server) handleAircraftClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dir.Clients().Vehicles())
}

func (s *Server) handleAircraftClientAdd(w http.ResponseWriter, r *http.Request) {
	acID, ok := intParam(w, r, "ac_id")
	if !ok {
		return
	}
	list, err := s.dir.Clients().AddVehicle(acID)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFlightBlockNoop(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "noop")
}

func (s *Server) handleFlightBlockClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dir.Clients().FlightBlocks())
}

func (s *Server) handleFlightBlockClientAdd(w http.ResponseWriter, r *http.Request) {
	fbID, ok := intParam(w, r, "fb_id")
	if !ok {
		return
	}
	list, err := s.dir.Clients().AddFlightBlock(fbID)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleWaypointClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dir.Clients().Waypoints())
}

func (s *Server) handleWaypointClientAdd(w http.ResponseWriter, r *http.Request) {
	wpID, ok := intParam(w, r, "wp_id")
	if !ok {
		return
	}
	list, err := s.dir.Clients().AddWaypoint(wpID)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMessageNames(w http.ResponseWriter, r *http.Request) {
	acID, ok := intParam(w, r, "ac_id")
	if !ok {
		return
	}
	names, err := s.dir.MessageNames(acID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown id")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	acID, ok := intParam(w, r, "ac_id")
	if !ok {
		return
	}
	rec, err := s.dir.Message(acID, chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, fleet.ErrUnknownVehicle):
		writeError(w, http.StatusNotFound, "unknown id")
		return
	case err != nil:
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Raw)
}

// writeFleetError maps directory errors to status codes.
func writeFleetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrNoClientVehicles):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, fleet.ErrUnknownVehicle),
		errors.Is(err, fleet.ErrUnknownFlightBlock),
		errors.Is(err, fleet.ErrUnknownWaypoint),
		errors.Is(err, fleet.ErrUnknownMessage):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
