package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"frc/internal/command"
	"frc/internal/fleet"
	"frc/internal/log"
	"frc/internal/pprz"
)

type recorder struct {
	sent []*pprz.Message
}

func (p *recorder) Publish(_ context.Context, m *pprz.Message) error {
	p.sent = append(p.sent, m)
	return nil
}

type modeIndex map[int]int

func (m modeIndex) Index(acID int, name string) (int, error) {
	if idx, ok := m[acID]; ok && name == command.ModeSetting {
		return idx, nil
	}
	return 0, errors.New("auto2 setting not found")
}

// newTestServer builds a server over vehicle 3 (Bixler) and vehicle 4
// (Microjet), neither of them in the client view.
func newTestServer(t *testing.T, cfg Config) (*Server, *fleet.Directory, *recorder) {
	t.Helper()
	d := fleet.NewDirectory()
	d.UpsertVehicle(3, "Bixler", "red")
	mustNoErr(t, d.AddWaypoint(3, fleet.DummyWaypoint()))
	mustNoErr(t, d.AddWaypoint(3, fleet.Waypoint{ID: 1, Name: "Home", X: "0.0", Y: "0.0"}))
	mustNoErr(t, d.AddWaypoint(3, fleet.Waypoint{ID: 2, Name: "Target", X: "100.0", Y: "-50.5"}))
	mustNoErr(t, d.AddFlightBlock(3, fleet.FlightBlock{ID: 0, Name: "Standby"}))
	d.UpsertVehicle(4, "Microjet", "blue")

	pub := &recorder{}
	cmd := command.New(command.Config{
		Publisher: pub,
		Settings:  modeIndex{3: 2},
		Clients:   d.Clients(),
		Logger:    log.Discard(),
		Verbose:   cfg.Verbose,
	})
	if cfg.IP == "" {
		cfg.IP = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	return NewServer(d, cmd, cfg, log.Discard()), d, pub
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func errorText(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	decode(t, rec, &resp)
	return resp["error"]
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, Config{})
	rec := get(t, server.Router(), "/health")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestTextRoutes(t *testing.T) {
	tests := []struct {
		path    string
		verbose bool
		want    string
	}{
		{"/", false, "Flying Robot Commander Server Running...."},
		{"/", true, "Flying Robot Commander Server Running....\n"},
		{"/about", false, "About: Flying Robot Commander Server v0.2.2\n"},
		{"/flightblock/noop/", false, "noop"},
		{"/guidance/", false, ""},
		{"/guidance/", true, "Guidance: All\n"},
		{"/waypoint/", true, "Waypoint: All\n"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			server, _, _ := newTestServer(t, Config{Verbose: tt.verbose})
			rec := get(t, server.Router(), tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAircraftRoutes(t *testing.T) {
	server, _, _ := newTestServer(t, Config{})
	router := server.Router()

	var ids []int
	decode(t, get(t, router, "/aircraft/"), &ids)
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 4 {
		t.Errorf("aircraft ids = %v", ids)
	}

	rec := get(t, router, "/aircraft/3")
	want := `[3,"Bixler","red",0,"dummy","42.0","42.0",1,"Home","0.0","0.0",2,"Target","100.0","-50.5",0,"Standby"]`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("flattened = %s\nwant        %s", got, want)
	}

	rec = get(t, router, "/aircraft/9")
	if rec.Code != http.StatusNotFound || errorText(t, rec) != "unknown id" {
		t.Errorf("unknown aircraft: status %d", rec.Code)
	}

	rec = get(t, router, "/aircraft/three")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-integer id: expected 400, got %d", rec.Code)
	}
}

func TestClientViewRoutes(t *testing.T) {
	server, _, _ := newTestServer(t, Config{})
	router := server.Router()

	steps := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/flightblock/client/add/0", http.StatusConflict, `{"error":"aircraft list is empty"}`},
		{"/waypoint/client/add/1", http.StatusConflict, `{"error":"aircraft list is empty"}`},
		{"/aircraft/client/add/9", http.StatusNotFound, `{"error":"unknown aircraft id"}`},
		{"/aircraft/client/add/3", http.StatusOK, `[3]`},
		{"/aircraft/client/add/4", http.StatusOK, `[3,4]`},
		{"/aircraft/client/add/3", http.StatusOK, `[3,4]`},
		{"/flightblock/client/add/0", http.StatusOK, `[0]`},
		{"/flightblock/client/add/5", http.StatusNotFound, `{"error":"unknown flightblock id"}`},
		{"/waypoint/client/add/2", http.StatusOK, `[2]`},
		{"/waypoint/client/add/0", http.StatusOK, `[2,0]`},
		{"/waypoint/client/add/7", http.StatusNotFound, `{"error":"unknown waypoint id"}`},
		{"/aircraft/client/", http.StatusOK, `[3,4]`},
		{"/flightblock/client/", http.StatusOK, `[0]`},
		{"/waypoint/client/", http.StatusOK, `[2,0]`},
	}

	for _, st := range steps {
		rec := get(t, router, st.path)
		if rec.Code != st.wantStatus {
			t.Errorf("%s: status %d, want %d", st.path, rec.Code, st.wantStatus)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != st.wantBody {
			t.Errorf("%s: body %s, want %s", st.path, got, st.wantBody)
		}
	}
}

func TestMessageRoutes(t *testing.T) {
	server, d, _ := newTestServer(t, Config{})
	router := server.Router()

	raw := `{"ac_id":3,"msg_class":"telemetry","msg_name":"GPS","fields":{"mode":3}}`
	mustNoErr(t, d.AddMessage(3, fleet.MessageRecord{
		Class: "telemetry", Name: "GPS", FieldValues: []any{3.0},
		LastSeen: time.Now().UTC(), Raw: json.RawMessage(raw),
	}))

	rec := get(t, router, "/message/3")
	if got := strings.TrimSpace(rec.Body.String()); got != `["GPS"]` {
		t.Errorf("message names = %s", got)
	}

	rec = get(t, router, "/message/4")
	if got := strings.TrimSpace(rec.Body.String()); got != `[]` {
		t.Errorf("no messages yet = %s, want []", got)
	}

	rec = get(t, router, "/message/3/GPS")
	if rec.Code != http.StatusOK || rec.Body.String() != raw {
		t.Errorf("message = %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	tests := []struct {
		path string
		want string
	}{
		{"/message/9", "unknown id"},
		{"/message/9/GPS", "unknown id"},
		{"/message/3/ATTITUDE", "unknown message"},
	}
	for _, tt := range tests {
		rec := get(t, router, tt.path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", tt.path, rec.Code)
			continue
		}
		if got := errorText(t, rec); got != tt.want {
			t.Errorf("%s: error %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCommandRoutes(t *testing.T) {
	server, d, pub := newTestServer(t, Config{Verbose: true})
	router := server.Router()
	_, _ = d.Clients().AddVehicle(3)
	_, _ = d.Clients().AddVehicle(4)

	tests := []struct {
		path     string
		wantBody string
		wantSent int
	}{
		{"/flightblock/0", "Flightblock All Aircraft: ac_id=3, fb_id=0\nFlightblock All Aircraft: ac_id=4, fb_id=0\n", 2},
		{"/flightblock/4/1", "Flightblock: ac_id=4, fb_id=1\n", 1},
		{"/guidance/setmode/3/19", "Guidance mode: ac_id=3, index=2, value=19\n", 1},
		{"/guidance/setmode/13", "Guidance Mode All Aircraft: ac_id=3, index=2, value=13\nskipped ac_id=4: auto2 setting not found\n", 1},
		{"/guidance/1/2.5/-3/0/90", "Guidance All Aircraft: ac_id=3, flag=1, x=2.5, y=-3, z=0, yaw=90\nGuidance All Aircraft: ac_id=4, flag=1, x=2.5, y=-3, z=0, yaw=90\n", 2},
		{"/guidance/3/0/1/2/3/4", "Guidance: ac_id=3, flag=0, x=1, y=2, z=3, yaw=4\n", 1},
		{"/waypoint/2/43.46/1.27/250", "Waypoint All Aircraft: ac_id=3, wp_id=2, lat=43.46, lon=1.27, alt=250\nWaypoint All Aircraft: ac_id=4, wp_id=2, lat=43.46, lon=1.27, alt=250\n", 2},
		{"/waypoint/3/1/43.5/1.3/200", "Waypoint: ac_id=3, wp_id=1, lat=43.5, lon=1.3, alt=200\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			before := len(pub.sent)
			rec := get(t, router, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := rec.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q\nwant   %q", got, tt.wantBody)
			}
			if sent := len(pub.sent) - before; sent != tt.wantSent {
				t.Errorf("published %d messages, want %d", sent, tt.wantSent)
			}
		})
	}
}

func TestCommandRoutesRejectBadParams(t *testing.T) {
	server, _, pub := newTestServer(t, Config{})
	router := server.Router()

	for _, path := range []string{
		"/flightblock/3/x",
		"/guidance/setmode/nav",
		"/guidance/1/north/0/0/0",
		"/waypoint/3/1/lat/1.3/200",
	} {
		if rec := get(t, router, path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
	if len(pub.sent) != 0 {
		t.Errorf("published %d messages for rejected requests", len(pub.sent))
	}
}

func TestShowViews(t *testing.T) {
	server, d, _ := newTestServer(t, Config{})
	router := server.Router()
	_, _ = d.Clients().AddVehicle(3)
	_, _ = d.Clients().AddFlightBlock(0)
	_, _ = d.Clients().AddWaypoint(2)

	tests := []struct {
		path  string
		want  []string
		cells int
	}{
		{"/show/flightblock/", []string{"Standby", `href="/flightblock/3/0"`, "3 Bixler"}, 1},
		{"/show/waypoint/", []string{"Target", `data-path="/waypoint/3/2"`}, 1},
		{"/show/guided/", []string{"GUIDED", `data-path="/guidance/setmode/3/19"`, `data-path="/guidance/3/13/10/0/0/0"`}, guidedColumns},
		{"/show/waypointhover/", []string{"Up 5m", `data-path="/guidance/3/13/0/0/-5/0"`}, hoverColumns},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, router, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("content type = %q", ct)
			}
			body := rec.Body.String()
			for _, s := range tt.want {
				if !strings.Contains(body, s) {
					t.Errorf("body missing %q", s)
				}
			}
			if got := strings.Count(body, "<td>"); got != tt.cells {
				t.Errorf("rendered %d cells, want %d", got, tt.cells)
			}
		})
	}
}

func TestShowViewsEmpty(t *testing.T) {
	server, _, _ := newTestServer(t, Config{})
	rec := get(t, server.Router(), "/show/guided/")
	if !strings.Contains(rec.Body.String(), "No aircraft in the client view") {
		t.Errorf("expected empty-view hint, got %s", rec.Body.String())
	}
}

func TestCurlEcho(t *testing.T) {
	var out bytes.Buffer
	server, _, _ := newTestServer(t, Config{Curl: &out})
	router := server.Router()

	mustNoErr(t, WriteCurlHeader(&out, "127.0.0.1", 5000))
	get(t, router, "/aircraft/")
	get(t, router, "/waypoint/3/1/43.5/1.3/200")

	want := "#!/bin/bash\nhost=127.0.0.1\nport=5000\n" +
		"curl http://$host:$port/aircraft/\n" +
		"curl http://$host:$port/waypoint/3/1/43.5/1.3/200\n"
	if got := out.String(); got != want {
		t.Errorf("curl output:\n%s\nwant:\n%s", got, want)
	}
}

func TestHandlerMiddleware(t *testing.T) {
	server, _, _ := newTestServer(t, Config{})
	rec := get(t, server.Handler(), "/about")
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.HasPrefix(string(body), "About:") {
		t.Errorf("body = %q", body)
	}
}
