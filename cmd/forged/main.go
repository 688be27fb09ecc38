package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"forged/internal/config"
	"forged/internal/events"
	"forged/internal/gpu"
	"forged/internal/httpapi"
	"forged/internal/manager"
	"forged/internal/runtime/pyworker"
	"forged/internal/store"
	"forged/pkg/types"
)

func main() {
	// Flags with environment variable defaults
	defaultConfig := "forged.yaml"
	if v := os.Getenv("FORGED_CONFIG"); v != "" {
		defaultConfig = v
	}
	configPath := flag.String("config", defaultConfig, "Path to config file (.yaml, .json or .toml)")
	addr := flag.String("addr", os.Getenv("FORGED_ADDR"), "HTTP listen address, overrides config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg.ApplyDefaults()
	if *addr != "" {
		cfg.Addr = *addr
	}

	log := newLogger(cfg)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("forged exited")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	bufferBytes, err := cfg.VRAMBufferBytes()
	if err != nil {
		return err
	}
	models, err := cfg.Models()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.OutputDir, cfg.TempDir, log)
	if err != nil {
		return err
	}
	st.CleanTemp(24 * time.Hour)

	probe := gpu.NewNVSMIProber()
	if vram := probe.Probe(); vram.Available {
		log.Info().Str("device", vram.DeviceName).
			Int64("total_bytes", vram.TotalBytes).
			Int64("free_bytes", vram.FreeBytes).
			Msg("gpu detected")
	} else {
		log.Warn().Str("error", vram.Error).Msg("gpu probe unavailable, admission is optimistic")
	}

	pub, pubClose := buildPublisher(cfg, log)
	defer pubClose()

	runtimes := map[types.Workload]manager.Runtime{
		types.WorkloadImage: pyworker.New(pyworker.Config{
			PythonBin: cfg.PythonBin,
			Script:    cfg.Image.Script,
			Logger:    log.With().Str("worker", cfg.Image.Name).Logger(),
		}),
		types.WorkloadMesh: pyworker.New(pyworker.Config{
			PythonBin: cfg.PythonBin,
			Script:    cfg.Mesh.Script,
			Logger:    log.With().Str("worker", cfg.Mesh.Name).Logger(),
		}),
	}
	required := make(map[types.Workload]int64, len(models))
	for _, m := range models {
		required[m.Workload] = m.RequiredVRAMBytes
	}

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Runtimes:      runtimes,
		RequiredBytes: required,
		BufferBytes:   bufferBytes,
		RestartAfter:  cfg.RestartAfter,
		Probe:         probe,
		Publisher:     pub,
		Logger:        log,
	})

	opts := httpapi.Options{
		Store:         st,
		Models:        models,
		MeshSteps:     cfg.Mesh.Steps,
		ImageGuidance: cfg.Image.Guidance,
		Logger:        log,
	}
	if cfg.CORS.Enabled {
		opts.CORSOrigins = cfg.CORS.AllowedOrigins
		if len(opts.CORSOrigins) == 0 {
			opts.CORSOrigins = []string{"*"}
		}
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.New(mgr, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("output_dir", st.OutputDir()).Msg("forged listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return err
	}

	// Stop accepting requests first, then tear down loaded models.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	mgr.Shutdown()
	st.CleanTemp(0)
	return nil
}

// newLogger builds the process logger. With a log file configured, output is
// JSON through a size-rotated file; otherwise a console writer on stderr.
func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if cfg.LogFile != "" {
		maxSize := cfg.LogMaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    maxSize,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// buildPublisher wires the event sink: the structured log always, Kafka on
// top when brokers are configured. The cleanup func flushes Kafka on exit.
func buildPublisher(cfg config.Config, log zerolog.Logger) (events.Publisher, func()) {
	lp := events.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) == 0 {
		return lp, func() {}
	}
	topic := cfg.Kafka.Topic
	if topic == "" {
		topic = "forged.events"
	}
	kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, topic, log)
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", topic).Msg("kafka events enabled")
	return events.Tee{lp, kp}, func() {
		if err := kp.Close(); err != nil {
			log.Warn().Err(err).Msg("kafka close")
		}
	}
}
