package pipeline

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"voxelstream/internal/gen"
	"voxelstream/internal/storage"
	"voxelstream/internal/world"
)

type popResult struct {
	coord    world.ChunkCoord
	blocks   *world.Blocks
	restored bool
	err      error
}

// Population resolves Load intents: restore from storage when persisted
// content exists, generate otherwise. The storage/generation call is the
// pipeline's only suspension point, so the work runs on a worker pool keyed
// per coordinate and completions re-enter as events. Completions are applied
// before new dispatches, which guarantees a job dispatched in tick T publishes
// its outcome no earlier than T+1.
type Population struct {
	bus   *Bus
	reg   *world.Registry
	store storage.Store
	gen   gen.Generator

	// Caps dispatches so a teleporting viewer cannot flood the workers.
	// nil means unlimited.
	limiter *rate.Limiter

	jobs    chan world.ChunkCoord
	results chan popResult
	backlog []world.ChunkCoord
	wg      sync.WaitGroup

	generated uint64
	restored  uint64
	failed    uint64
}

func NewPopulation(bus *Bus, reg *world.Registry, store storage.Store, g gen.Generator, workers int, limiter *rate.Limiter) *Population {
	bus.Subscribe(StagePopulation, EvLoad)
	if workers <= 0 {
		workers = 1
	}
	p := &Population{
		bus:     bus,
		reg:     reg,
		store:   store,
		gen:     g,
		limiter: limiter,
		jobs:    make(chan world.ChunkCoord, 4096),
		results: make(chan popResult, 4096),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Population) worker() {
	defer p.wg.Done()
	for c := range p.jobs {
		p.results <- p.resolve(c)
	}
}

// resolve implements the restore-or-generate decision. Both success paths
// converge on the same LoadOK signal downstream.
func (p *Population) resolve(c world.ChunkCoord) popResult {
	blocks, err := p.store.Load(c)
	if err == nil {
		return popResult{coord: c, blocks: blocks, restored: true}
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return popResult{coord: c, err: err}
	}
	blocks, err = p.gen.Generate(c)
	if err != nil {
		return popResult{coord: c, err: err}
	}
	return popResult{coord: c, blocks: blocks}
}

func (p *Population) Step(tick uint64) error {
	// Apply completions first.
drain:
	for {
		select {
		case res := <-p.results:
			if err := p.apply(res); err != nil {
				return err
			}
		default:
			break drain
		}
	}

	for _, ev := range p.bus.Drain(StagePopulation, EvLoad) {
		p.backlog = append(p.backlog, ev.Coord)
	}
	// Undispatched coordinates stay in the backlog with the chunk held in
	// Loading; they are picked up as the limiter and queue allow.
	for len(p.backlog) > 0 {
		if p.limiter != nil && !p.limiter.Allow() {
			break
		}
		c := p.backlog[0]
		select {
		case p.jobs <- c:
		default:
			return nil
		}
		if err := p.reg.BeginPopulate(c); err != nil {
			return err
		}
		p.backlog = p.backlog[1:]
	}
	return nil
}

func (p *Population) apply(res popResult) error {
	if res.err != nil {
		if err := p.reg.FailPopulate(res.coord); err != nil {
			return err
		}
		p.failed++
		p.bus.Publish(Event{Kind: EvLoadFail, Coord: res.coord, Err: res.err.Error()})
		return nil
	}
	if err := p.reg.CompletePopulate(res.coord, res.blocks); err != nil {
		return err
	}
	if res.restored {
		p.restored++
		p.bus.Publish(Event{Kind: EvRestoreOK, Coord: res.coord})
	} else {
		p.generated++
		p.bus.Publish(Event{Kind: EvGenerateOK, Coord: res.coord})
	}
	p.bus.Publish(Event{Kind: EvLoadOK, Coord: res.coord})
	return nil
}

func (p *Population) Backlog() int { return len(p.backlog) }

// Close stops the workers. Pending results are discarded; callers stop the
// pipeline before closing.
func (p *Population) Close() {
	close(p.jobs)
	p.wg.Wait()
}
