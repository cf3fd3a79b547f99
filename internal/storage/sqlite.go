package storage

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"voxelstream/internal/world"
)

// SQLiteStore persists chunk content in a single sqlite database, one row per
// coordinate, block payloads zstd-compressed. Upserts make Save idempotent
// per coordinate.
type SQLiteStore struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, enc: enc, dec: dec}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps persist latency stable under the cleanup stage's write bursts.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	z INTEGER NOT NULL,
	blocks BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (x, y, z)
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(c world.ChunkCoord) (*world.Blocks, error) {
	var blob []byte
	err := s.db.QueryRow(
		`SELECT blocks FROM chunks WHERE x = ? AND y = ? AND z = ?`,
		c.X, c.Y, c.Z,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c, err)
	}
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("load %s: decode: %w", c, err)
	}
	b, err := bytesToBlocks(raw)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c, err)
	}
	return b, nil
}

func (s *SQLiteStore) Save(c world.ChunkCoord, b *world.Blocks) error {
	if b == nil || len(b.Cells) != world.ChunkVolume {
		return fmt.Errorf("save %s: malformed content", c)
	}
	blob := s.enc.EncodeAll(blocksToBytes(b), nil)
	_, err := s.db.Exec(
		`INSERT INTO chunks (x, y, z, blocks, updated_at) VALUES (?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (x, y, z) DO UPDATE SET blocks = excluded.blocks, updated_at = excluded.updated_at`,
		c.X, c.Y, c.Z, blob,
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", c, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func blocksToBytes(b *world.Blocks) []byte {
	out := make([]byte, 2*len(b.Cells))
	for i, v := range b.Cells {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func bytesToBlocks(raw []byte) (*world.Blocks, error) {
	if len(raw) != 2*world.ChunkVolume {
		return nil, fmt.Errorf("payload is %d bytes, want %d", len(raw), 2*world.ChunkVolume)
	}
	b := world.NewBlocks()
	for i := range b.Cells {
		b.Cells[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return b, nil
}
