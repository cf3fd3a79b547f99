package pipeline

import "voxelstream/internal/world"

// EventKind is the closed set of message tags flowing through the bus.
type EventKind uint8

const (
	// External producers (scripting collaborator, transport).
	EvLoadHint     EventKind = iota + 1 // force a coordinate into the interest set
	EvScriptUpdate                      // chunk content updated by script

	// Observer -> Manager.
	EvInterest // full interest set for the tick, in Coords

	// Manager -> Population / Cleanup.
	EvLoad
	EvUnload

	// Population -> Manager.
	EvGenerateOK
	EvRestoreOK
	EvLoadOK
	EvLoadFail

	// Cleanup -> Manager.
	EvUnloadOK

	// Manager / Simulator -> presentation collaborator.
	EvChunkReady
	EvChunkUpdate
	EvChunkRemoved
)

func (k EventKind) String() string {
	switch k {
	case EvLoadHint:
		return "LOAD_HINT"
	case EvScriptUpdate:
		return "SCRIPT_UPDATE"
	case EvInterest:
		return "INTEREST"
	case EvLoad:
		return "LOAD"
	case EvUnload:
		return "UNLOAD"
	case EvGenerateOK:
		return "GENERATE_OK"
	case EvRestoreOK:
		return "RESTORE_OK"
	case EvLoadOK:
		return "LOAD_OK"
	case EvLoadFail:
		return "LOAD_FAIL"
	case EvUnloadOK:
		return "UNLOAD_OK"
	case EvChunkReady:
		return "CHUNK_READY"
	case EvChunkUpdate:
		return "CHUNK_UPDATE"
	case EvChunkRemoved:
		return "CHUNK_REMOVED"
	default:
		return "INVALID"
	}
}

// Event is an immutable tagged message. Coord is the payload for every kind
// except EvInterest, which carries the whole sorted interest set in Coords.
// Err is set only on EvLoadFail.
type Event struct {
	Kind   EventKind
	Coord  world.ChunkCoord
	Coords []world.ChunkCoord
	Err    string
}
