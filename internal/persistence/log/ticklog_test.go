package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelstream/internal/pipeline"
)

func TestTickLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)

	entries := []pipeline.TickLogEntry{
		{Tick: 1, TS: time.Now().UTC(), Events: []pipeline.EventRecord{{Kind: "LOAD", Coord: [3]int{1, 2, 3}}}},
		{Tick: 2, TS: time.Now().UTC(), Events: []pipeline.EventRecord{{Kind: "LOAD_FAIL", Coord: [3]int{0, 0, 0}, Err: "boom"}}},
	}
	for _, e := range entries {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("WriteTick(%d): %v", e.Tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "ticks", "ticks-*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("log files = %v (err %v), want exactly one", matches, err)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer zr.Close()

	var got []pipeline.TickLogEntry
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var e pipeline.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("read back %d entries, want %d", len(got), len(entries))
	}
	for i, e := range got {
		if e.Tick != entries[i].Tick {
			t.Fatalf("entry %d tick = %d, want %d", i, e.Tick, entries[i].Tick)
		}
		if len(e.Events) != len(entries[i].Events) || e.Events[0].Kind != entries[i].Events[0].Kind {
			t.Fatalf("entry %d events = %+v, want %+v", i, e.Events, entries[i].Events)
		}
	}
}
