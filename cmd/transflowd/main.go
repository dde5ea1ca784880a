package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"

	"github.com/lokutor-ai/transflow-engine/pkg/orchestrator"
	"github.com/lokutor-ai/transflow-engine/pkg/providers/bus"
	"github.com/lokutor-ai/transflow-engine/pkg/providers/control"
	"github.com/lokutor-ai/transflow-engine/pkg/providers/engine"
	"github.com/lokutor-ai/transflow-engine/pkg/providers/fswatch"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	cfg := configFromEnv()

	logger := orchestrator.NewZeroLogger("transflowd")

	dsn := os.Getenv("CONTROL_DSN")
	if dsn == "" {
		log.Fatal("Error: CONTROL_DSN must be set (control-plane MySQL DSN)")
	}

	engineName := os.Getenv("ENGINE_PROVIDER")
	if engineName == "" {
		engineName = "groq"
	}
	factory, err := engineFactory(engineName, cfg.Language)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	clk := clock.New()
	enabled := orchestrator.NewEnabledSet()

	watcher, err := control.New(dsn, enabled, cfg.ControlInterval, clk, orchestrator.NewZeroLogger("control"))
	if err != nil {
		log.Fatalf("Error: failed to connect to control plane: %v", err)
	}

	maxBackoff := 5 * time.Second
	publisher, err := bus.New(cfg.BusURL, cfg.ChannelName, maxBackoff, orchestrator.NewZeroLogger("bus"))
	if err != nil {
		log.Fatalf("Error: failed to connect to message bus: %v", err)
	}
	defer publisher.Close()

	orch := orchestrator.New(cfg, clk, logger, enabled, factory, publisher)

	if notifier, err := fswatch.New(cfg.MonitorDir, orchestrator.NewZeroLogger("fswatch")); err != nil {
		logger.Warn("fast-path file watcher unavailable, falling back to poll-only discovery", "error", err)
	} else {
		defer notifier.Close()
		orch = orch.WithFastPath(notifier.Notify())
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received, draining streams")
		cancel()
	}()

	go watcher.Run(ctx)

	logger.Info("transflowd starting", "monitorDir", cfg.MonitorDir, "engine", factory.Name())
	orch.Run(ctx)
	logger.Info("transflowd stopped")
}

func engineFactory(name, lang string) (engine.Factory, error) {
	switch name {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for openai engine")
		}
		return engine.NewOpenAIFactory(key, os.Getenv("OPENAI_STT_MODEL"), lang), nil
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("DEEPGRAM_API_KEY must be set for deepgram engine")
		}
		return engine.NewDeepgramFactory(key, lang), nil
	case "assemblyai":
		key := os.Getenv("ASSEMBLYAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ASSEMBLYAI_API_KEY must be set for assemblyai engine")
		}
		return engine.NewAssemblyAIFactory(key, lang), nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GROQ_API_KEY must be set for groq engine")
		}
		return engine.NewGroqFactory(key, os.Getenv("GROQ_STT_MODEL"), lang), nil
	}
}

func configFromEnv() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()

	if v := os.Getenv("MONITOR_DIR"); v != "" {
		cfg.MonitorDir = v
	}
	if v := os.Getenv("BUS_URL"); v != "" {
		cfg.BusURL = v
	}
	if v := os.Getenv("CHANNEL_NAME"); v != "" {
		cfg.ChannelName = v
	}
	if v := os.Getenv("AGENT_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SampleRate = n
		}
	}
	if v := os.Getenv("FRAME_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FrameSeconds = n
		}
	}
	if v := os.Getenv("SCAN_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScanInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("TAIL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TailInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("CONTROL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ControlInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("MAX_STREAMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxStreams = n
		}
	}
	if v := os.Getenv("IDLE_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("START_BACK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StartBackSeconds = n
		}
	}
	if v := os.Getenv("EMIT_TRANSCRIBING_PLACEHOLDER"); v != "" {
		cfg.EmitTranscribingPlaceholder = v == "true" || v == "1"
	}

	return cfg
}
