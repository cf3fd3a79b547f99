package pipeline

// Stage identifies a declared consumer on the bus.
type Stage uint8

const (
	StageObserver Stage = iota
	StageManager
	StagePopulation
	StageSimulator
	StageCleanup
	StagePresentation
	StageRecorder

	stageCount
)

func (s Stage) String() string {
	switch s {
	case StageObserver:
		return "observer"
	case StageManager:
		return "manager"
	case StagePopulation:
		return "population"
	case StageSimulator:
		return "simulator"
	case StageCleanup:
		return "cleanup"
	case StagePresentation:
		return "presentation"
	case StageRecorder:
		return "recorder"
	default:
		return "invalid"
	}
}

// Bus is the tick-scoped publish/consume channel between stages. Delivery is
// broadcast: an event of a kind with several declared consumers lands in each
// consumer's queue independently, in publication order, and Drain removes it
// only from the draining consumer's view.
//
// Same-tick vs next-tick visibility is the scheduling contract of the fixed
// stage sequence, not bus logic: a stage draining its queue sees whatever was
// published before its slot this tick, and everything published after its slot
// waits in the queue until the next tick.
//
// Publishing a kind nobody subscribed to is legal and delivers nothing.
type Bus struct {
	subs   map[EventKind][]Stage
	queues [stageCount]map[EventKind][]Event
}

func NewBus() *Bus {
	b := &Bus{subs: map[EventKind][]Stage{}}
	for i := range b.queues {
		b.queues[i] = map[EventKind][]Event{}
	}
	return b
}

// Subscribe declares stage as a consumer of the given kinds.
func (b *Bus) Subscribe(s Stage, kinds ...EventKind) {
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], s)
	}
}

// Publish appends ev to the queue of every declared consumer of its kind.
func (b *Bus) Publish(ev Event) {
	for _, s := range b.subs[ev.Kind] {
		b.queues[s][ev.Kind] = append(b.queues[s][ev.Kind], ev)
	}
}

// Drain returns all pending events of kind for stage, in publication order,
// and clears them from that stage's view only.
func (b *Bus) Drain(s Stage, kind EventKind) []Event {
	q := b.queues[s][kind]
	if len(q) == 0 {
		return nil
	}
	b.queues[s][kind] = nil
	return q
}

// Pending reports how many events of kind are queued for stage.
func (b *Bus) Pending(s Stage, kind EventKind) int {
	return len(b.queues[s][kind])
}
