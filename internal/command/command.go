// Package command builds the outbound bus commands and sends them to one
// vehicle or to every vehicle in the client view.
package command

import (
	"context"
	"fmt"
	"strings"

	"frc/internal/log"
	"frc/internal/pprz"
)

// ModeSetting is the setting that selects the autopilot mode.
const ModeSetting = "auto2"

// Autopilot mode values commonly sent with SetMode.
const (
	ModeNav    = 13
	ModeGuided = 19
)

// Publisher sends a message on the bus.
type Publisher interface {
	Publish(ctx context.Context, m *pprz.Message) error
}

// SettingLookup resolves a named setting to its index for one vehicle.
type SettingLookup interface {
	Index(acID int, name string) (int, error)
}

// VehicleList returns the vehicles a broadcast command is sent to.
type VehicleList interface {
	Vehicles() []int
}

// Setpoint is a guided-mode NED setpoint.
type Setpoint struct {
	Flags int
	X     float64
	Y     float64
	Z     float64
	Yaw   float64
}

// WaypointMove relocates one waypoint.
type WaypointMove struct {
	WPID int
	Lat  float64
	Lon  float64
	Alt  float64
}

// Commander sends commands.
type Commander struct {
	pub      Publisher
	settings SettingLookup
	clients  VehicleList
	logger   *log.Logger
	verbose  bool
}

// Config configures a Commander.
type Config struct {
	Publisher Publisher
	Settings  SettingLookup
	Clients   VehicleList
	Logger    *log.Logger
	Verbose   bool // Fill Report.Trace.
}

// New creates a Commander.
func New(cfg Config) *Commander {
	return &Commander{
		pub:      cfg.Publisher,
		settings: cfg.Settings,
		clients:  cfg.Clients,
		logger:   cfg.Logger.With("component", "command"),
		verbose:  cfg.Verbose,
	}
}

// Verbose reports whether commands produce trace text.
func (c *Commander) Verbose() bool {
	return c.verbose
}

// SetModeAll sets the autopilot mode of every client-view vehicle.
func (c *Commander) SetModeAll(ctx context.Context, value int) *Report {
	return c.broadcast(ctx, func(r *Report, acID int) {
		c.setMode(ctx, r, "Guidance Mode All Aircraft", acID, value)
	})
}

// SetMode sets the autopilot mode of one vehicle.
func (c *Commander) SetMode(ctx context.Context, acID, value int) *Report {
	r := &Report{}
	c.setMode(ctx, r, "Guidance mode", acID, value)
	return r
}

func (c *Commander) setMode(ctx context.Context, r *Report, label string, acID, value int) {
	index, err := c.settings.Index(acID, ModeSetting)
	if err != nil {
		c.logger.Warn("mode change not possible", "ac_id", acID, "setting", ModeSetting, "error", err)
		r.skip(acID, err)
		return
	}

	msg := pprz.New(pprz.ClassGround, "DL_SETTING").
		Set("ac_id", acID).
		Set("index", index).
		Set("value", value)
	c.send(ctx, r, acID, msg, fmt.Sprintf("%s: ac_id=%d, index=%d, value=%d", label, acID, index, value))
}

// GuidedAll sends a guided setpoint to every client-view vehicle.
func (c *Commander) GuidedAll(ctx context.Context, sp Setpoint) *Report {
	return c.broadcast(ctx, func(r *Report, acID int) {
		c.guided(ctx, r, "Guidance All Aircraft", acID, sp)
	})
}

// Guided sends a guided setpoint to one vehicle.
func (c *Commander) Guided(ctx context.Context, acID int, sp Setpoint) *Report {
	r := &Report{}
	c.guided(ctx, r, "Guidance", acID, sp)
	return r
}

func (c *Commander) guided(ctx context.Context, r *Report, label string, acID int, sp Setpoint) {
	msg := pprz.New(pprz.ClassDatalink, "GUIDED_SETPOINT_NED").
		Set("ac_id", acID).
		Set("flags", sp.Flags).
		Set("x", sp.X).
		Set("y", sp.Y).
		Set("z", sp.Z).
		Set("yaw", sp.Yaw)
	c.send(ctx, r, acID, msg, fmt.Sprintf("%s: ac_id=%d, flag=%d, x=%g, y=%g, z=%g, yaw=%g",
		label, acID, sp.Flags, sp.X, sp.Y, sp.Z, sp.Yaw))
}

// MoveWaypointAll moves a waypoint on every client-view vehicle.
func (c *Commander) MoveWaypointAll(ctx context.Context, mv WaypointMove) *Report {
	return c.broadcast(ctx, func(r *Report, acID int) {
		c.moveWaypoint(ctx, r, "Waypoint All Aircraft", acID, mv)
	})
}

// MoveWaypoint moves a waypoint on one vehicle.
func (c *Commander) MoveWaypoint(ctx context.Context, acID int, mv WaypointMove) *Report {
	r := &Report{}
	c.moveWaypoint(ctx, r, "Waypoint", acID, mv)
	return r
}

func (c *Commander) moveWaypoint(ctx context.Context, r *Report, label string, acID int, mv WaypointMove) {
	msg := pprz.New(pprz.ClassGround, "MOVE_WAYPOINT").
		Set("ac_id", acID).
		Set("wp_id", mv.WPID).
		Set("lat", mv.Lat).
		Set("long", mv.Lon).
		Set("alt", mv.Alt)
	c.send(ctx, r, acID, msg, fmt.Sprintf("%s: ac_id=%d, wp_id=%d, lat=%g, lon=%g, alt=%g",
		label, acID, mv.WPID, mv.Lat, mv.Lon, mv.Alt))
}

// JumpToBlockAll makes every client-view vehicle jump to flight block fbID.
func (c *Commander) JumpToBlockAll(ctx context.Context, fbID int) *Report {
	return c.broadcast(ctx, func(r *Report, acID int) {
		c.jumpToBlock(ctx, r, "Flightblock All Aircraft", acID, fbID)
	})
}

// JumpToBlock makes one vehicle jump to flight block fbID.
func (c *Commander) JumpToBlock(ctx context.Context, acID, fbID int) *Report {
	r := &Report{}
	c.jumpToBlock(ctx, r, "Flightblock", acID, fbID)
	return r
}

func (c *Commander) jumpToBlock(ctx context.Context, r *Report, label string, acID, fbID int) {
	msg := pprz.New(pprz.ClassGround, "JUMP_TO_BLOCK").
		Set("ac_id", acID).
		Set("block_id", fbID)
	c.send(ctx, r, acID, msg, fmt.Sprintf("%s: ac_id=%d, fb_id=%d", label, acID, fbID))
}

// broadcast runs one independent command per client-view vehicle. A failed
// vehicle never stops the loop.
func (c *Commander) broadcast(ctx context.Context, one func(r *Report, acID int)) *Report {
	r := &Report{}
	for _, acID := range c.clients.Vehicles() {
		if err := ctx.Err(); err != nil {
			r.skip(acID, err)
			continue
		}
		one(r, acID)
	}
	return r
}

func (c *Commander) send(ctx context.Context, r *Report, acID int, msg *pprz.Message, trace string) {
	msg.ACID = acID
	c.logger.Debug("sending bus message", "msg", msg.String())
	if err := c.pub.Publish(ctx, msg); err != nil {
		c.logger.Warn("publish failed", "ac_id", acID, "msg", msg.Name, "error", err)
		r.skip(acID, err)
		return
	}
	r.Outcomes = append(r.Outcomes, Outcome{ACID: acID, Sent: true})
	if c.verbose {
		r.Trace = append(r.Trace, trace)
	}
}

// Outcome is the result of a command for one vehicle.
type Outcome struct {
	ACID int
	Sent bool
	Err  error // Why the vehicle was skipped.
}

// Report collects the per-vehicle outcomes of one command call.
type Report struct {
	Outcomes []Outcome
	Trace    []string // Human-readable line per sent message, verbose mode only.
}

func (r *Report) skip(acID int, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{ACID: acID, Err: err})
}

// Sent returns the number of vehicles a message was published for.
func (r *Report) Sent() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Sent {
			n++
		}
	}
	return n
}

// Skipped returns the outcomes of vehicles no message was published for.
func (r *Report) Skipped() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Sent {
			out = append(out, o)
		}
	}
	return out
}

// Text renders the trace lines followed by one line per skipped vehicle.
func (r *Report) Text() string {
	var sb strings.Builder
	for _, line := range r.Trace {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, o := range r.Skipped() {
		fmt.Fprintf(&sb, "skipped ac_id=%d: %v\n", o.ACID, o.Err)
	}
	return sb.String()
}
