// Package ingest applies live telemetry to the vehicle directory.
//
// The bus handler only enqueues raw payloads. A single Run loop decodes and
// applies them, so it is the only writer of message state.
package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"frc/internal/fleet"
	"frc/internal/log"
	"frc/internal/pprz"
	"frc/internal/snapshot"
)

// DefaultBuffer is the event queue length used when none is configured.
const DefaultBuffer = 1024

// Event is a raw telemetry payload as received from the bus. Received
// becomes the LastSeen of the applied record.
type Event struct {
	Data     []byte
	Received time.Time
}

// Writer persists applied state. snapshot.Store satisfies it.
type Writer interface {
	SaveVehicle(ctx context.Context, v snapshot.VehicleRow) error
	SaveMessage(ctx context.Context, acID int, rec fleet.MessageRecord) error
}

// Stats counts what the ingester has seen.
type Stats struct {
	Received     uint64
	Applied      uint64
	DecodeErrors uint64
	Dropped      uint64
}

// Ingester owns the telemetry queue.
type Ingester struct {
	dir    *fleet.Directory
	codec  pprz.Codec
	logger *log.Logger
	store  Writer
	now    func() time.Time
	events chan Event

	received     atomic.Uint64
	applied      atomic.Uint64
	decodeErrors atomic.Uint64
	dropped      atomic.Uint64
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithClock sets the clock used for LastSeen.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) { i.now = now }
}

// WithStore writes every applied record through to w.
func WithStore(w Writer) Option {
	return func(i *Ingester) { i.store = w }
}

// WithBuffer sets the event queue length.
func WithBuffer(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.events = make(chan Event, n)
		}
	}
}

// New creates an Ingester applying to dir.
func New(dir *fleet.Directory, codec pprz.Codec, logger *log.Logger, opts ...Option) *Ingester {
	if codec == nil {
		codec = pprz.JSONCodec{}
	}
	i := &Ingester{
		dir:    dir,
		codec:  codec,
		logger: logger.With("component", "ingest"),
		now:    time.Now,
		events: make(chan Event, DefaultBuffer),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Handle enqueues a raw payload. It never blocks: when the queue is full
// the payload is dropped and counted.
func (i *Ingester) Handle(data []byte) {
	i.received.Add(1)
	select {
	case i.events <- Event{Data: data, Received: i.now()}:
	default:
		if i.dropped.Add(1)%100 == 1 {
			i.logger.Warn("telemetry queue full, dropping", "dropped", i.dropped.Load())
		}
	}
}

// Run applies queued events until ctx is cancelled.
func (i *Ingester) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-i.events:
			i.process(ctx, ev)
		}
	}
}

func (i *Ingester) process(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("telemetry apply panicked", "panic", r)
		}
	}()

	msg, err := i.codec.Unmarshal(ev.Data)
	if err != nil {
		i.decodeErrors.Add(1)
		i.logger.Warn("dropping undecodable telemetry", "error", err, "bytes", len(ev.Data))
		return
	}
	if err := i.apply(ctx, msg.ACID, msg, ev.Received); err != nil {
		i.logger.Warn("telemetry not applied", "ac_id", msg.ACID, "msg", msg.Name, "error", err)
	}
}

// Apply records msg as the latest message of its name for vehicle acID,
// creating the vehicle as unknown if it has never been seen. LastSeen is
// the current time.
func (i *Ingester) Apply(ctx context.Context, acID int, msg *pprz.Message) error {
	return i.apply(ctx, acID, msg, i.now())
}

// apply stamps the record with seen, the time the payload came off the bus.
func (i *Ingester) apply(ctx context.Context, acID int, msg *pprz.Message, seen time.Time) error {
	raw, err := pprz.RawJSON(msg)
	if err != nil {
		return fmt.Errorf("render %s: %w", msg.Name, err)
	}

	if i.dir.UpsertVehicle(acID, fleet.Unknown, fleet.Unknown) {
		if i.store != nil {
			row := snapshot.VehicleRow{ID: acID, Name: fleet.Unknown, Color: fleet.Unknown}
			if err := i.store.SaveVehicle(ctx, row); err != nil {
				i.logger.Warn("snapshot vehicle write failed", "ac_id", acID, "error", err)
			}
		}
	}

	rec := fleet.MessageRecord{
		Class:       msg.Class,
		Name:        msg.Name,
		FieldValues: msg.Values(),
		LastSeen:    seen.UTC(),
		Raw:         raw,
	}
	if err := i.dir.AddMessage(acID, rec); err != nil {
		return err
	}
	i.applied.Add(1)

	if i.store != nil {
		if err := i.store.SaveMessage(ctx, acID, rec); err != nil {
			i.logger.Warn("snapshot message write failed", "ac_id", acID, "msg", msg.Name, "error", err)
		}
	}
	return nil
}

// Stats returns the current counters.
func (i *Ingester) Stats() Stats {
	return Stats{
		Received:     i.received.Load(),
		Applied:      i.applied.Load(),
		DecodeErrors: i.decodeErrors.Load(),
		Dropped:      i.dropped.Load(),
	}
}
