package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lokutor-ai/transflow-engine/pkg/providers/engine/stub"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func testConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.MonitorDir = dir
	cfg.SampleRate = 8000
	cfg.FrameSeconds = 1
	cfg.ScanInterval = 20 * time.Millisecond
	cfg.TailInterval = 10 * time.Millisecond
	cfg.IdleTimeout = 200 * time.Millisecond
	cfg.MaxStreams = 100
	return cfg
}

func TestOrchestratorStartsTailerOnlyWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1-2-in.raw"), make([]byte, 16000), 0644); err != nil {
		t.Fatal(err)
	}

	enabled := NewEnabledSet()
	cfg := testConfig(dir)
	factory := stub.NewFactory("stub")
	pub := &fakePublisher{}
	o := New(cfg, clock.New(), &NoOpLogger{}, enabled, factory, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	defer cancel()

	time.Sleep(100 * time.Millisecond)
	if o.ActiveStreams() != 0 {
		t.Fatalf("expected no tailers before enabling call, got %d", o.ActiveStreams())
	}

	enabled.Replace(map[CallId]struct{}{"1-2": {}})
	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 1 })
}

func TestOrchestratorStopsPromptlyOnDisable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1-2-in.raw")
	if err := os.WriteFile(path, make([]byte, 16000), 0644); err != nil {
		t.Fatal(err)
	}

	enabled := NewEnabledSet()
	enabled.Replace(map[CallId]struct{}{"1-2": {}})

	cfg := testConfig(dir)
	factory := stub.NewFactory("stub")
	pub := &fakePublisher{}
	o := New(cfg, clock.New(), &NoOpLogger{}, enabled, factory, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 1 })

	enabled.Replace(map[CallId]struct{}{})
	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 0 })
}

func TestOrchestratorDefersBeyondMaxStreams(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1-1-in.raw", "2-2-in.raw", "3-3-in.raw"} {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, 16000), 0644); err != nil {
			t.Fatal(err)
		}
	}

	enabled := NewEnabledSet()
	enabled.Replace(map[CallId]struct{}{"1-1": {}, "2-2": {}, "3-3": {}})

	cfg := testConfig(dir)
	cfg.MaxStreams = 2
	factory := stub.NewFactory("stub")
	pub := &fakePublisher{}
	o := New(cfg, clock.New(), &NoOpLogger{}, enabled, factory, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 2 })
	waitFor(t, 2*time.Second, func() bool { return o.DeferredStarts() == 1 })
}

func TestOrchestratorGatingPublishesConsolidatedOnDisable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1-2-in.raw")
	// Two 1 s frames (16,000 bytes each), one per scripted step.
	if err := os.WriteFile(path, make([]byte, 32000), 0644); err != nil {
		t.Fatal(err)
	}

	enabled := NewEnabledSet()
	enabled.Replace(map[CallId]struct{}{"1-2": {}})

	cfg := testConfig(dir)
	factory := stub.NewFactory("stub", []stub.Step{
		{Final: false, Text: "bon"},
		{Final: true, Text: "bonjour"},
	})
	pub := &fakePublisher{}
	o := New(cfg, clock.New(), &NoOpLogger{}, enabled, factory, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 1 })
	waitFor(t, 2*time.Second, func() bool { return len(pub.all()) >= 2 })

	enabled.Replace(map[CallId]struct{}{})
	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 0 })

	var consolidated []TranscriptEvent
	for _, ev := range pub.all() {
		if ev.Status == StatusConsolidated {
			consolidated = append(consolidated, ev)
		}
	}
	if len(consolidated) != 1 {
		t.Fatalf("expected exactly 1 consolidated event (S2), got %d", len(consolidated))
	}
	if consolidated[0].Text != "bonjour" {
		t.Errorf("expected consolidated text 'bonjour', got %q", consolidated[0].Text)
	}
}

func TestOrchestratorChannelIndependence(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "2-2-in.raw")
	outPath := filepath.Join(dir, "2-2-out.raw")
	if err := os.WriteFile(inPath, make([]byte, 16000), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(outPath, make([]byte, 16000), 0644); err != nil {
		t.Fatal(err)
	}

	enabled := NewEnabledSet()
	enabled.Replace(map[CallId]struct{}{"2-2": {}})

	cfg := testConfig(dir)
	// Stub sessions are handed out in NewSession call order; the
	// orchestrator starts inbound and outbound tailers independently,
	// so either scripted final may land on either channel. What must
	// hold is I4: each stream's completed text matches its own script,
	// never the other's.
	factory := stub.NewFactory("stub",
		[]stub.Step{{Final: true, Text: "salut"}},
		[]stub.Step{{Final: true, Text: "bonjour"}},
	)
	pub := &fakePublisher{}
	o := New(cfg, clock.New(), &NoOpLogger{}, enabled, factory, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 2 })
	waitFor(t, 2*time.Second, func() bool {
		completed := 0
		for _, ev := range pub.all() {
			if ev.Status == StatusCompleted {
				completed++
			}
		}
		return completed == 2
	})

	seen := map[string]bool{}
	for _, ev := range pub.all() {
		if ev.Status == StatusCompleted {
			if ev.Text != "salut" && ev.Text != "bonjour" {
				t.Errorf("unexpected completed text %q (channel mixing, I4 violation)", ev.Text)
			}
			seen[ev.Speaker] = true
		}
	}
	if !seen["client"] || !seen["agent"] {
		t.Errorf("expected one completed event per speaker, got speakers %v", seen)
	}
}

func TestOrchestratorIdleTimeoutStopsStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "3-3-in.raw")
	if err := os.WriteFile(path, make([]byte, 16000), 0644); err != nil {
		t.Fatal(err)
	}

	enabled := NewEnabledSet()
	enabled.Replace(map[CallId]struct{}{"3-3": {}})

	cfg := testConfig(dir)
	cfg.IdleTimeout = 50 * time.Millisecond
	factory := stub.NewFactory("stub", []stub.Step{{Final: true, Text: "allo"}})
	pub := &fakePublisher{}
	o := New(cfg, clock.New(), &NoOpLogger{}, enabled, factory, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 1 })
	// File never grows again; after IdleTimeout the stream self-stops (S4).
	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 0 })
}

func TestOrchestratorThirdStreamStartsAfterOneCompletes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1-1-in.raw", "2-2-in.raw", "3-3-in.raw"} {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, 16000), 0644); err != nil {
			t.Fatal(err)
		}
	}

	enabled := NewEnabledSet()
	enabled.Replace(map[CallId]struct{}{"1-1": {}, "2-2": {}, "3-3": {}})

	cfg := testConfig(dir)
	cfg.MaxStreams = 2
	factory := stub.NewFactory("stub")
	pub := &fakePublisher{}
	o := New(cfg, clock.New(), &NoOpLogger{}, enabled, factory, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 2 })
	waitFor(t, 2*time.Second, func() bool { return o.DeferredStarts() == 1 })

	// Disabling one of the two running calls frees a slot for the
	// deferred third (S6's "when one completes, the third starts").
	o.mu.Lock()
	var running CallId
	for id, channels := range o.tailers {
		if len(channels) > 0 {
			running = id
			break
		}
	}
	o.mu.Unlock()
	next := map[CallId]struct{}{"1-1": {}, "2-2": {}, "3-3": {}}
	delete(next, running)
	enabled.Replace(next)
	waitFor(t, 2*time.Second, func() bool { return o.ActiveStreams() == 2 && o.DeferredStarts() == 0 })
}

func TestOrchestratorIgnoresStaleFileAtStartup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "4-4-in.raw")
	if err := os.WriteFile(path, make([]byte, 16000), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-120 * time.Second)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	enabled := NewEnabledSet()
	enabled.Replace(map[CallId]struct{}{"4-4": {}})

	cfg := testConfig(dir)
	factory := stub.NewFactory("stub")
	pub := &fakePublisher{}
	o := New(cfg, clock.New(), &NoOpLogger{}, enabled, factory, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	time.Sleep(300 * time.Millisecond)
	if o.ActiveStreams() != 0 {
		t.Errorf("expected no tailer for a stale file at startup (S5), got %d active", o.ActiveStreams())
	}
}
