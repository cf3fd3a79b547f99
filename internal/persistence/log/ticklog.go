package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelstream/internal/pipeline"
)

// TickLogger records one JSONL entry per tick that produced chunk lifecycle
// events. Output is zstd-compressed and rotated hourly so a long-running
// server never grows a single unbounded file. It satisfies
// pipeline.TickWriter.
type TickLogger struct {
	dir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	zw      *zstd.Encoder
	buf     *bufio.Writer
}

func NewTickLogger(dataDir string) *TickLogger {
	return &TickLogger{dir: filepath.Join(dataDir, "ticks")}
}

func (l *TickLogger) WriteTick(entry pipeline.TickLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != l.curHour {
		if err := l.rotate(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := l.buf.Write(b); err != nil {
		return err
	}
	if err := l.buf.WriteByte('\n'); err != nil {
		return err
	}
	// Flushed per tick so a crash loses at most the entry being written.
	return l.buf.Flush()
}

func (l *TickLogger) rotate(hour string) error {
	if err := l.closeCurrent(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.dir, fmt.Sprintf("ticks-%s.jsonl.zst", hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.zw = zw
	l.buf = bufio.NewWriterSize(zw, 128*1024)
	l.curHour = hour
	return nil
}

func (l *TickLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCurrent()
}

func (l *TickLogger) closeCurrent() error {
	var errEnc error
	if l.buf != nil {
		_ = l.buf.Flush()
	}
	if l.zw != nil {
		errEnc = l.zw.Close()
		l.zw = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.buf = nil
	return errEnc
}
