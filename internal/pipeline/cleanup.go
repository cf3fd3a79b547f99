package pipeline

import (
	"fmt"
	"log"
	"sync"

	"voxelstream/internal/storage"
	"voxelstream/internal/world"
)

type persistJob struct {
	coord  world.ChunkCoord
	blocks *world.Blocks
	dirty  bool
}

type persistResult struct {
	coord world.ChunkCoord
	err   error
}

// Cleanup finalizes unloads: persist dirty content, then free it. Content is
// never freed before a successful save. A failed save keeps the chunk in
// Unloading with content retained and retries next tick; after Attempts
// failures (0 = retry forever) the abandon policy finalizes without
// persisting.
type Cleanup struct {
	bus   *Bus
	reg   *world.Registry
	store storage.Store

	// Attempts bounds persist retries per chunk; 0 retries forever.
	Attempts int

	logger *log.Logger

	jobs    chan persistJob
	results chan persistResult
	backlog []world.ChunkCoord
	tries   map[world.ChunkCoord]int
	wg      sync.WaitGroup

	persisted uint64
	saveFails uint64
	abandoned uint64
}

func NewCleanup(bus *Bus, reg *world.Registry, store storage.Store, workers int, logger *log.Logger) *Cleanup {
	bus.Subscribe(StageCleanup, EvUnload)
	if workers <= 0 {
		workers = 1
	}
	c := &Cleanup{
		bus:     bus,
		reg:     reg,
		store:   store,
		logger:  logger,
		jobs:    make(chan persistJob, 4096),
		results: make(chan persistResult, 4096),
		tries:   map[world.ChunkCoord]int{},
	}
	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c
}

func (c *Cleanup) worker() {
	defer c.wg.Done()
	for job := range c.jobs {
		var err error
		if job.dirty {
			err = c.store.Save(job.coord, job.blocks)
		}
		// Clean chunks have nothing to persist; regeneration is deterministic.
		c.results <- persistResult{coord: job.coord, err: err}
	}
}

func (c *Cleanup) Step(tick uint64) error {
drain:
	for {
		select {
		case res := <-c.results:
			if err := c.apply(res); err != nil {
				return err
			}
		default:
			break drain
		}
	}

	for _, ev := range c.bus.Drain(StageCleanup, EvUnload) {
		c.backlog = append(c.backlog, ev.Coord)
	}

	for len(c.backlog) > 0 {
		coord := c.backlog[0]
		blocks, dirty, ok := c.reg.ContentForUnload(coord)
		if !ok {
			return fmt.Errorf("%w: unload dispatched for %s in state %s",
				world.ErrBadTransition, coord, c.reg.State(coord))
		}
		select {
		case c.jobs <- persistJob{coord: coord, blocks: blocks, dirty: dirty}:
		default:
			return nil
		}
		c.backlog = c.backlog[1:]
	}
	return nil
}

func (c *Cleanup) apply(res persistResult) error {
	if res.err == nil {
		if err := c.reg.CompleteUnload(res.coord); err != nil {
			return err
		}
		delete(c.tries, res.coord)
		c.persisted++
		c.bus.Publish(Event{Kind: EvUnloadOK, Coord: res.coord})
		return nil
	}

	c.saveFails++
	c.tries[res.coord]++
	if c.Attempts > 0 && c.tries[res.coord] >= c.Attempts {
		if c.logger != nil {
			c.logger.Printf("cleanup: abandoning persist for %s after %d attempts: %v", res.coord, c.tries[res.coord], res.err)
		}
		if err := c.reg.AbandonUnload(res.coord); err != nil {
			return err
		}
		delete(c.tries, res.coord)
		c.abandoned++
		c.bus.Publish(Event{Kind: EvUnloadOK, Coord: res.coord})
		return nil
	}

	if c.logger != nil {
		c.logger.Printf("cleanup: persist failed for %s (attempt %d): %v", res.coord, c.tries[res.coord], res.err)
	}
	// Chunk stays Unloading, content retained; retried next tick.
	c.backlog = append(c.backlog, res.coord)
	return nil
}

func (c *Cleanup) Backlog() int { return len(c.backlog) }

func (c *Cleanup) Close() {
	close(c.jobs)
	c.wg.Wait()
}
