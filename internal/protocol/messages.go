package protocol

// VIEWER (client -> server): the client's position in block coordinates.
// The server derives the containing chunk.
type ViewerMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Pos             [3]int `json:"pos"`
}

// LOAD_HINT (client -> server): chunk coordinates a script wants resident
// ahead of any viewer reaching them.
type LoadHintMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version,omitempty"`
	Chunks          [][3]int `json:"chunks"`
}

// SCRIPT_UPDATE (client -> server): a script mutated chunk content outside
// the simulation rule.
type ScriptUpdateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Chunk           [3]int `json:"chunk"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	ChunkSize       int    `json:"chunk_size"`
	ViewDistance    int    `json:"view_distance"`
}

// CHUNK_READY / CHUNK_UPDATE (server -> client): chunk content, zstd over
// little-endian uint16 cells, base64 in JSON.
type ChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Chunk           [3]int `json:"chunk"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}

// CHUNK_REMOVED (server -> client)
type ChunkRemovedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Chunk           [3]int `json:"chunk"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

// EncodingZstd16LE is the only chunk payload encoding currently emitted.
const EncodingZstd16LE = "ZSTD16LE"
