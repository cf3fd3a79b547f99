package pipeline

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"voxelstream/internal/gen"
	"voxelstream/internal/storage"
	"voxelstream/internal/world"
)

// Config tunes the pipeline. Zero values fall back to defaults.
type Config struct {
	TickRateHz   int
	ViewDistance int
	BufferMargin int

	PopulateWorkers int
	// PopulateRate caps population dispatches per second; 0 disables the cap.
	PopulateRate  float64
	PopulateBurst int

	PersistWorkers int
	// PersistAttempts bounds persist retries per chunk; 0 retries forever.
	PersistAttempts int
}

func (c *Config) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 10
	}
	if c.ViewDistance <= 0 {
		c.ViewDistance = 4
	}
	if c.BufferMargin <= 0 {
		c.BufferMargin = 1
	}
	if c.PopulateWorkers <= 0 {
		c.PopulateWorkers = 4
	}
	if c.PopulateBurst <= 0 {
		c.PopulateBurst = 256
	}
	if c.PersistWorkers <= 0 {
		c.PersistWorkers = 2
	}
}

// ChunkViewer is the read-only registry surface handed to presentation sinks.
// Deliver runs on the pipeline goroutine, so reads through it are safe for the
// duration of the call only.
type ChunkViewer interface {
	View(c world.ChunkCoord) (world.BlockView, bool)
}

// PresentationSink receives the lifecycle events addressed to clients after
// every tick. Implementations must not retain the viewer past the call.
type PresentationSink interface {
	Deliver(tick uint64, events []Event, view ChunkViewer)
}

// TickWriter records the per-tick event log.
type TickWriter interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is one tick's worth of recorded pipeline events.
type TickLogEntry struct {
	Tick   uint64        `json:"tick"`
	TS     time.Time     `json:"ts"`
	Events []EventRecord `json:"events,omitempty"`
}

type EventRecord struct {
	Kind  string `json:"kind"`
	Coord [3]int `json:"coord"`
	Err   string `json:"err,omitempty"`
}

// ViewerUpdate moves or removes a viewer. Chunk is the viewer's position in
// chunk coordinates.
type ViewerUpdate struct {
	ID     string
	Chunk  world.ChunkCoord
	Remove bool
}

// Pipeline owns the chunk registry and drives the fixed stage sequence
// Observe, Manage, Populate, Simulate, Cleanup once per tick on a single
// goroutine. External inputs arrive over channels and are folded in at the
// top of the next tick.
type Pipeline struct {
	cfg    Config
	logger *log.Logger

	bus *Bus
	reg *world.Registry

	obs *Observer
	mgr *Manager
	pop *Population
	sim *Simulator
	cln *Cleanup

	sink   PresentationSink
	ticks  TickWriter
	record bool

	viewer  chan ViewerUpdate
	hints   chan world.ChunkCoord
	scripts chan world.ChunkCoord
	stop    chan struct{}

	tick    uint64
	metrics atomic.Value
}

func New(cfg Config, store storage.Store, g gen.Generator, rule Rule, logger *log.Logger) *Pipeline {
	cfg.applyDefaults()

	bus := NewBus()
	reg := world.NewRegistry()

	var limiter *rate.Limiter
	if cfg.PopulateRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PopulateRate), cfg.PopulateBurst)
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		reg:    reg,
		obs:    NewObserver(bus, cfg.ViewDistance),
		mgr:    NewManager(bus, reg, cfg.BufferMargin, logger),
		pop:    NewPopulation(bus, reg, store, g, cfg.PopulateWorkers, limiter),
		sim:    NewSimulator(bus, reg, rule),
		cln:    NewCleanup(bus, reg, store, cfg.PersistWorkers, logger),

		viewer:  make(chan ViewerUpdate, 256),
		hints:   make(chan world.ChunkCoord, 256),
		scripts: make(chan world.ChunkCoord, 256),
		stop:    make(chan struct{}),
	}
	p.cln.Attempts = cfg.PersistAttempts

	bus.Subscribe(StagePresentation, EvChunkReady, EvChunkUpdate, EvChunkRemoved)
	return p
}

// SetSink installs the presentation sink. Call before Run.
func (p *Pipeline) SetSink(s PresentationSink) { p.sink = s }

// SetTickWriter installs the tick log writer and turns on event recording.
// Call before Run.
func (p *Pipeline) SetTickWriter(w TickWriter) {
	p.ticks = w
	p.record = true
	p.bus.Subscribe(StageRecorder,
		EvLoad, EvUnload, EvGenerateOK, EvRestoreOK, EvLoadOK, EvLoadFail,
		EvUnloadOK, EvChunkReady, EvChunkUpdate, EvChunkRemoved)
}

// Viewer is the inbox for viewer position updates.
func (p *Pipeline) Viewer() chan<- ViewerUpdate { return p.viewer }

// LoadHints is the inbox for script should-load hints, in chunk coordinates.
func (p *Pipeline) LoadHints() chan<- world.ChunkCoord { return p.hints }

// ScriptUpdates is the inbox for script content-changed notifications.
func (p *Pipeline) ScriptUpdates() chan<- world.ChunkCoord { return p.scripts }

func (p *Pipeline) TickRateHz() int { return p.cfg.TickRateHz }

func (p *Pipeline) ViewDistance() int { return p.cfg.ViewDistance }

func (p *Pipeline) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(p.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer p.close()

	var pendingViewers []ViewerUpdate
	var pendingHints []world.ChunkCoord
	var pendingScripts []world.ChunkCoord

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case upd := <-p.viewer:
			pendingViewers = append(pendingViewers, upd)
		case c := <-p.hints:
			pendingHints = append(pendingHints, c)
		case c := <-p.scripts:
			pendingScripts = append(pendingScripts, c)
		case <-ticker.C:
			if err := p.step(pendingViewers, pendingHints, pendingScripts); err != nil {
				return err
			}
			pendingViewers = pendingViewers[:0]
			pendingHints = pendingHints[:0]
			pendingScripts = pendingScripts[:0]
		}
	}
}

func (p *Pipeline) Stop() { close(p.stop) }

func (p *Pipeline) close() {
	p.pop.Close()
	p.cln.Close()
}

// StepOnce advances the pipeline by a single tick with the same ordering
// semantics as Run. It is intended for deterministic tests.
func (p *Pipeline) StepOnce(viewers []ViewerUpdate, hints, scripts []world.ChunkCoord) (uint64, error) {
	tick := p.tick
	return tick, p.step(viewers, hints, scripts)
}

func (p *Pipeline) step(viewers []ViewerUpdate, hints, scripts []world.ChunkCoord) error {
	started := time.Now()
	tick := p.tick

	for _, upd := range viewers {
		if upd.Remove {
			p.obs.RemoveViewer(upd.ID)
		} else {
			p.obs.SetViewer(upd.ID, upd.Chunk)
		}
	}
	for _, c := range hints {
		p.bus.Publish(Event{Kind: EvLoadHint, Coord: c})
	}
	for _, c := range scripts {
		p.bus.Publish(Event{Kind: EvScriptUpdate, Coord: c})
	}

	interest := p.obs.Step(tick)
	if err := p.mgr.Step(tick); err != nil {
		return err
	}
	if err := p.pop.Step(tick); err != nil {
		return err
	}
	p.sim.Step(tick)
	if err := p.cln.Step(tick); err != nil {
		return err
	}

	p.present(tick)
	p.recordTick(tick)

	p.metrics.Store(Metrics{
		Tick:            tick,
		Viewers:         p.obs.Viewers(),
		Interest:        interest,
		Loading:         p.reg.CountState(world.StateLoading),
		Populating:      p.reg.CountState(world.StatePopulating),
		Ready:           p.reg.CountState(world.StateReady),
		Unloading:       p.reg.CountState(world.StateUnloading),
		Generated:       p.pop.generated,
		Restored:        p.pop.restored,
		LoadFailures:    p.pop.failed,
		Persisted:       p.cln.persisted,
		PersistFailures: p.cln.saveFails,
		Abandoned:       p.cln.abandoned,
		PopulateBacklog: p.pop.Backlog(),
		PersistBacklog:  p.cln.Backlog(),
		StepMS:          float64(time.Since(started).Microseconds()) / 1000.0,
	})

	p.tick++
	return nil
}

func (p *Pipeline) present(tick uint64) {
	var events []Event
	for _, kind := range []EventKind{EvChunkReady, EvChunkUpdate, EvChunkRemoved} {
		events = append(events, p.bus.Drain(StagePresentation, kind)...)
	}
	if p.sink == nil || len(events) == 0 {
		return
	}
	p.sink.Deliver(tick, events, p.reg)
}

func (p *Pipeline) recordTick(tick uint64) {
	if !p.record {
		return
	}
	var records []EventRecord
	for _, kind := range []EventKind{
		EvLoad, EvUnload, EvGenerateOK, EvRestoreOK, EvLoadOK, EvLoadFail,
		EvUnloadOK, EvChunkReady, EvChunkUpdate, EvChunkRemoved,
	} {
		for _, ev := range p.bus.Drain(StageRecorder, kind) {
			records = append(records, EventRecord{
				Kind:  ev.Kind.String(),
				Coord: [3]int{ev.Coord.X, ev.Coord.Y, ev.Coord.Z},
				Err:   ev.Err,
			})
		}
	}
	if len(records) == 0 {
		return
	}
	entry := TickLogEntry{Tick: tick, TS: time.Now().UTC(), Events: records}
	if err := p.ticks.WriteTick(entry); err != nil && p.logger != nil {
		p.logger.Printf("pipeline: tick log write failed: %v", err)
	}
}
