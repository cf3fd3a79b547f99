package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelstream/internal/config"
	"voxelstream/internal/gen"
	persistlog "voxelstream/internal/persistence/log"
	"voxelstream/internal/pipeline"
	"voxelstream/internal/storage"
	"voxelstream/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "", "path to server.yaml (optional)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		seed       = flag.Int64("seed", 0, "world seed (overrides config when nonzero)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Addr = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	store, err := storage.OpenSQLite(filepath.Join(cfg.DataDir, "chunks.db"))
	if err != nil {
		logger.Fatalf("open chunk store: %v", err)
	}
	defer store.Close()

	pipe := pipeline.New(pipeline.Config{
		TickRateHz:      cfg.TickRateHz,
		ViewDistance:    cfg.ViewDistance,
		BufferMargin:    cfg.BufferMargin,
		PopulateWorkers: cfg.PopulateWorkers,
		PopulateRate:    cfg.PopulateRate,
		PopulateBurst:   cfg.PopulateBurst,
		PersistWorkers:  cfg.PersistWorkers,
		PersistAttempts: cfg.PersistAttempts,
	}, store, gen.NewHashGen(cfg.Seed), nil, logger)

	if cfg.TickLog {
		tickLog := persistlog.NewTickLogger(cfg.DataDir)
		defer tickLog.Close()
		pipe.SetTickWriter(tickLog)
	}

	wsSrv, err := ws.NewServer(pipe, logger)
	if err != nil {
		logger.Fatalf("ws server: %v", err)
	}
	defer wsSrv.Close()

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("pipeline stopped: %v", err)
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := pipe.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelstream_tick Current pipeline tick.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_tick gauge\n")
		fmt.Fprintf(rw, "voxelstream_tick %d\n", m.Tick)

		fmt.Fprintf(rw, "# HELP voxelstream_viewers Connected viewers.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_viewers gauge\n")
		fmt.Fprintf(rw, "voxelstream_viewers %d\n", m.Viewers)

		fmt.Fprintf(rw, "# HELP voxelstream_interest Interest set size.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_interest gauge\n")
		fmt.Fprintf(rw, "voxelstream_interest %d\n", m.Interest)

		fmt.Fprintf(rw, "# HELP voxelstream_chunks Chunk count by state.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_chunks gauge\n")
		fmt.Fprintf(rw, "voxelstream_chunks{state=%q} %d\n", "loading", m.Loading)
		fmt.Fprintf(rw, "voxelstream_chunks{state=%q} %d\n", "populating", m.Populating)
		fmt.Fprintf(rw, "voxelstream_chunks{state=%q} %d\n", "ready", m.Ready)
		fmt.Fprintf(rw, "voxelstream_chunks{state=%q} %d\n", "unloading", m.Unloading)

		fmt.Fprintf(rw, "# HELP voxelstream_population_total Chunk population outcomes.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_population_total counter\n")
		fmt.Fprintf(rw, "voxelstream_population_total{outcome=%q} %d\n", "generated", m.Generated)
		fmt.Fprintf(rw, "voxelstream_population_total{outcome=%q} %d\n", "restored", m.Restored)
		fmt.Fprintf(rw, "voxelstream_population_total{outcome=%q} %d\n", "failed", m.LoadFailures)

		fmt.Fprintf(rw, "# HELP voxelstream_persist_total Chunk persist outcomes.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_persist_total counter\n")
		fmt.Fprintf(rw, "voxelstream_persist_total{outcome=%q} %d\n", "persisted", m.Persisted)
		fmt.Fprintf(rw, "voxelstream_persist_total{outcome=%q} %d\n", "failed", m.PersistFailures)
		fmt.Fprintf(rw, "voxelstream_persist_total{outcome=%q} %d\n", "abandoned", m.Abandoned)

		fmt.Fprintf(rw, "# HELP voxelstream_backlog Undispatched work per stage.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_backlog gauge\n")
		fmt.Fprintf(rw, "voxelstream_backlog{stage=%q} %d\n", "populate", m.PopulateBacklog)
		fmt.Fprintf(rw, "voxelstream_backlog{stage=%q} %d\n", "persist", m.PersistBacklog)

		fmt.Fprintf(rw, "# HELP voxelstream_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_step_ms gauge\n")
		fmt.Fprintf(rw, "voxelstream_step_ms %.3f\n", m.StepMS)
	})
	mux.HandleFunc("/statez", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(pipe.Metrics())
	})
	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tick %d Hz, view distance %d)", cfg.Addr, cfg.TickRateHz, cfg.ViewDistance)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}
