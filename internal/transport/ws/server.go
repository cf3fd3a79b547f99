package ws

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"voxelstream/internal/pipeline"
	"voxelstream/internal/protocol"
	"voxelstream/internal/world"
)

// Server bridges WebSocket clients and the pipeline. Client messages feed the
// pipeline inboxes; chunk lifecycle events delivered after each tick fan out
// to every connected session. It satisfies pipeline.PresentationSink.
type Server struct {
	pipe *pipeline.Pipeline
	log  *log.Logger

	upgrader websocket.Upgrader
	enc      *zstd.Encoder

	mu       sync.Mutex
	sessions map[string]chan []byte
}

func NewServer(p *pipeline.Pipeline, logger *log.Logger) (*Server, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	s := &Server{
		pipe: p,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		enc:      enc,
		sessions: map[string]chan []byte{},
	}
	p.SetSink(s)
	return s, nil
}

// Deliver runs on the pipeline goroutine. Payloads are encoded once and
// broadcast; a slow client drops its oldest frame rather than stalling the
// tick.
func (s *Server) Deliver(tick uint64, events []pipeline.Event, view pipeline.ChunkViewer) {
	frames := make([][]byte, 0, len(events))
	for _, ev := range events {
		var msg any
		switch ev.Kind {
		case pipeline.EvChunkReady, pipeline.EvChunkUpdate:
			bv, ok := view.View(ev.Coord)
			if !ok {
				continue
			}
			typ := protocol.TypeChunkReady
			if ev.Kind == pipeline.EvChunkUpdate {
				typ = protocol.TypeChunkUpdate
			}
			msg = protocol.ChunkMsg{
				Type:            typ,
				ProtocolVersion: protocol.Version,
				Tick:            tick,
				Chunk:           [3]int{ev.Coord.X, ev.Coord.Y, ev.Coord.Z},
				Encoding:        protocol.EncodingZstd16LE,
				Data:            s.encodeView(bv),
			}
		case pipeline.EvChunkRemoved:
			msg = protocol.ChunkRemovedMsg{
				Type:            protocol.TypeChunkRemoved,
				ProtocolVersion: protocol.Version,
				Tick:            tick,
				Chunk:           [3]int{ev.Coord.X, ev.Coord.Y, ev.Coord.Z},
			}
		default:
			continue
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		frames = append(frames, b)
	}
	if len(frames) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.sessions {
		for _, b := range frames {
			sendLatest(out, b)
		}
	}
}

func (s *Server) encodeView(v world.BlockView) string {
	raw := make([]byte, 2*world.ChunkVolume)
	for i := 0; i < world.ChunkVolume; i++ {
		binary.LittleEndian.PutUint16(raw[2*i:], v.Cell(i))
	}
	return base64.StdEncoding.EncodeToString(s.enc.EncodeAll(raw, nil))
}

func (s *Server) Close() {
	s.enc.Close()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id := uuid.NewString()
		out := make(chan []byte, 256)

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       id,
			TickRateHz:      s.pipe.TickRateHz(),
			ChunkSize:       world.ChunkSize,
			ViewDistance:    s.pipe.ViewDistance(),
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}

		s.mu.Lock()
		s.sessions[id] = out
		s.mu.Unlock()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.route(id, msg, out)
		}

		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		s.pipe.Viewer() <- pipeline.ViewerUpdate{ID: id, Remove: true}
	}
}

func (s *Server) route(id string, msg []byte, out chan []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.sendError(out, protocol.ErrProtoBadRequest, "unparseable message")
		return
	}
	switch base.Type {
	case protocol.TypeViewer:
		var m protocol.ViewerMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(out, protocol.ErrProtoBadRequest, "bad VIEWER")
			return
		}
		// Positions arrive in block coordinates.
		s.pipe.Viewer() <- pipeline.ViewerUpdate{
			ID:    id,
			Chunk: world.ChunkOf(m.Pos[0], m.Pos[1], m.Pos[2]),
		}
	case protocol.TypeLoadHint:
		var m protocol.LoadHintMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(out, protocol.ErrProtoBadRequest, "bad LOAD_HINT")
			return
		}
		for _, c := range m.Chunks {
			s.pipe.LoadHints() <- world.ChunkCoord{X: c[0], Y: c[1], Z: c[2]}
		}
	case protocol.TypeScriptUpdate:
		var m protocol.ScriptUpdateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(out, protocol.ErrProtoBadRequest, "bad SCRIPT_UPDATE")
			return
		}
		s.pipe.ScriptUpdates() <- world.ChunkCoord{X: m.Chunk[0], Y: m.Chunk[1], Z: m.Chunk[2]}
	default:
		s.sendError(out, protocol.ErrProtoBadRequest, "unknown type "+base.Type)
	}
}

// Errors ride the session's out channel; the writer goroutine is the only
// writer on the conn after the welcome.
func (s *Server) sendError(out chan []byte, code, detail string) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         detail,
	})
	if err != nil {
		return
	}
	sendLatest(out, b)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
