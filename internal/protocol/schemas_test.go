package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelstream/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	viewerSchema := compile("viewer.schema.json")
	hintSchema := compile("load_hint.schema.json")
	scriptSchema := compile("script_update.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	chunkSchema := compile("chunk.schema.json")
	removedSchema := compile("chunk_removed.schema.json")

	var viewer any
	_ = json.Unmarshal([]byte(`{
	  "type":"VIEWER",
	  "protocol_version":"1.0",
	  "pos":[-33,64,17]
	}`), &viewer)
	validate(viewerSchema, viewer)

	var hint any
	_ = json.Unmarshal([]byte(`{
	  "type":"LOAD_HINT",
	  "chunks":[[0,0,0],[-2,4,1]]
	}`), &hint)
	validate(hintSchema, hint)

	var script any
	_ = json.Unmarshal([]byte(`{
	  "type":"SCRIPT_UPDATE",
	  "chunk":[3,0,-1]
	}`), &script)
	validate(scriptSchema, script)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"4f2c9a10-ffff-4bcd-9ed2-000000000000",
	  "tick_rate_hz":10,
	  "chunk_size":16,
	  "view_distance":4
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var chunk any
	_ = json.Unmarshal([]byte(`{
	  "type":"CHUNK_READY",
	  "protocol_version":"1.0",
	  "tick":42,
	  "chunk":[1,-2,3],
	  "encoding":"ZSTD16LE",
	  "data":"KLUv/QBY"
	}`), &chunk)
	validate(chunkSchema, chunk)

	var removed any
	_ = json.Unmarshal([]byte(`{
	  "type":"CHUNK_REMOVED",
	  "protocol_version":"1.0",
	  "tick":99,
	  "chunk":[1,-2,3]
	}`), &removed)
	validate(removedSchema, removed)
}

func TestDecodeBase_RoutesByType(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"VIEWER","protocol_version":"1.0","pos":[0,0,0]}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if m.Type != protocol.TypeViewer {
		t.Fatalf("type = %q, want %q", m.Type, protocol.TypeViewer)
	}
}

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{"", protocol.ErrProtoBadRequest, protocol.ErrRateLimit, protocol.ErrInternal} {
		if !protocol.IsKnownCode(code) {
			t.Fatalf("IsKnownCode(%q) = false, want true", code)
		}
	}
	if protocol.IsKnownCode("E_MADE_UP") {
		t.Fatalf("IsKnownCode accepted an unknown code")
	}
}
