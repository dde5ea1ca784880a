package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/lokutor-ai/transflow-engine/pkg/providers/engine"
)

// runningTailer pairs a live StreamTailer with a channel closed when
// its Run loop returns, so the Orchestrator's reaper can detect
// self-terminated streams (idle timeout) without polling each one.
type runningTailer struct {
	tailer *StreamTailer
	done   chan struct{}
}

// Orchestrator is the single reconciliation loop of spec.md §4.6: it
// is the only component that creates or destroys streams, diffing
// {enabled calls} x {discovered files} against {running tailers}.
type Orchestrator struct {
	cfg     Config
	clock   clock.Clock
	logger  Logger
	enabled *EnabledSet
	scanner *Scanner
	factory engine.Factory
	pub     Publisher

	fastPath <-chan struct{}

	mu      sync.Mutex
	calls   map[CallId]*CallState
	tailers map[CallId]map[Channel]*runningTailer

	active   int
	deferred int
}

// WithFastPath attaches an optional notifier (e.g. pkg/providers/fswatch)
// that wakes Run's reconciliation loop early when new files appear, on
// top of (never instead of) the mandatory ScanInterval poll.
func (o *Orchestrator) WithFastPath(notify <-chan struct{}) *Orchestrator {
	o.fastPath = notify
	return o
}

// New constructs an Orchestrator. factory and pub are the external
// collaborators of spec.md §6 (recognizer model, message bus); enabled
// is written only by a Control Plane Watcher, never by the Orchestrator.
func New(cfg Config, clk clock.Clock, logger Logger, enabled *EnabledSet, factory engine.Factory, pub Publisher) *Orchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if factory == nil || pub == nil {
		logger.Error("orchestrator constructed with a required collaborator missing", "error", ErrNilProvider)
	}
	return &Orchestrator{
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
		enabled: enabled,
		scanner: NewScanner(cfg.MonitorDir, cfg.IdleTimeout, logger),
		factory: factory,
		pub:     pub,
		calls:   make(map[CallId]*CallState),
		tailers: make(map[CallId]map[Channel]*runningTailer),
	}
}

// Run blocks, reconciling every cfg.ScanInterval, until ctx is
// cancelled. On return, every still-running tailer has been signaled
// to stop and joined (I6).
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := o.clock.Ticker(o.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		o.reconcileOnce()

		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case <-ticker.C:
		case <-o.fastPathChan():
		}
	}
}

// fastPathChan returns o.fastPath, or a nil channel (which blocks
// forever in a select) when no fast-path notifier is attached.
func (o *Orchestrator) fastPathChan() <-chan struct{} {
	return o.fastPath
}

// ActiveStreams reports the number of currently-running tailers.
func (o *Orchestrator) ActiveStreams() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// DeferredStarts reports how many stream starts are currently being
// withheld because MaxStreams is saturated (spec.md §5 resource
// policy, S6).
func (o *Orchestrator) DeferredStarts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deferred
}

func (o *Orchestrator) reconcileOnce() {
	o.reapFinished()

	snapshot := o.enabled.Snapshot()
	now := o.clock.Now()

	discovered, err := o.scanner.Scan(now)
	if err != nil {
		o.logger.Debug("scan failed, will retry next tick", "error", err)
		discovered = nil
	}

	o.mu.Lock()
	deferred := 0
	for callId, files := range discovered {
		if _, ok := snapshot[callId]; !ok {
			continue
		}

		state, ok := o.calls[callId]
		if !ok {
			state = newCallState(callId)
			o.calls[callId] = state
			o.tailers[callId] = make(map[Channel]*runningTailer)
		}

		for _, file := range files {
			if now.Sub(file.ModTime) > o.cfg.IdleTimeout {
				continue // stale file, never resurrect (S5)
			}
			if _, live := o.tailers[callId][file.Channel]; live {
				continue
			}

			if o.active >= o.cfg.MaxStreams {
				deferred++
				o.logger.Debug("stream start deferred", "callId", callId, "channel", file.Channel, "error", ErrMaxStreamsReached)
				continue
			}

			o.startTailer(state, file)
		}
	}

	for callId, state := range o.calls {
		if _, stillEnabled := snapshot[callId]; stillEnabled {
			continue
		}
		o.stopCall(callId, state)
	}
	o.deferred = deferred
	o.mu.Unlock()
}

// startTailer must be called with o.mu held.
func (o *Orchestrator) startTailer(state *CallState, file AudioFile) {
	engSess, err := o.factory.NewSession(o.cfg.SampleRate)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
		o.logger.Warn("failed to create recognizer session, deferring", "callId", file.CallId, "channel", file.Channel, "error", wrapped)
		return
	}

	session := NewRecognizerSession(file.CallId, file.Channel, o.cfg, o.clock, o.logger, o.pub, engSess, o.factory.Name())
	tailer := NewStreamTailer(file, o.cfg, o.clock, o.logger, o.enabled, session)
	state.Streams[file.Channel] = tailer.state

	done := make(chan struct{})
	o.tailers[file.CallId][file.Channel] = &runningTailer{tailer: tailer, done: done}
	o.active++

	go func() {
		tailer.Run()
		close(done)
	}()
}

// stopCall must be called with o.mu held. It asynchronously signals
// every tailer of a disabled call to stop so reconcileOnce does not
// block the scan loop on a slow drain; teardown completes on a later
// reap once all tailers have acknowledged (I6).
func (o *Orchestrator) stopCall(callId CallId, state *CallState) {
	state.Status = "stopped"
	for _, rt := range o.tailers[callId] {
		rt := rt
		go rt.tailer.Stop()
	}
}

// reapFinished removes tailers whose Run loop has already returned
// (self-terminated via idle timeout, or stopped by stopCall) and
// tears down the CallState of a stopped call once it has no live
// streams; an enabled call's CallState is kept.
func (o *Orchestrator) reapFinished() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for callId, channels := range o.tailers {
		for channel, rt := range channels {
			select {
			case <-rt.done:
				delete(channels, channel)
				o.active--
			default:
			}
		}
		if len(channels) == 0 {
			if state, ok := o.calls[callId]; ok && state.Status == "stopped" {
				delete(o.calls, callId)
				delete(o.tailers, callId)
			}
		}
	}
}

func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	var all []*runningTailer
	for _, channels := range o.tailers {
		for _, rt := range channels {
			all = append(all, rt)
		}
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, rt := range all {
		wg.Add(1)
		go func(rt *runningTailer) {
			defer wg.Done()
			rt.tailer.Stop()
		}(rt)
	}
	wg.Wait()
}
