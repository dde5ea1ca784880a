package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lokutor-ai/transflow-engine/pkg/providers/engine"
)

// RecognizerSession drives one engine.Session for one (CallId,
// Channel) stream, implementing the state machine in spec.md §4.5:
// Idle -> Decoding (partial/final emission) -> Draining -> Terminal.
// It and its engine.Session are created by the Orchestrator when it
// starts the stream's tailer; from then on only that tailer's
// goroutine drives it (I4).
type RecognizerSession struct {
	callId     CallId
	channel    Channel
	cfg        Config
	clock      clock.Clock
	logger     Logger
	pub        Publisher
	engine     engine.Session
	engineName string

	mu           sync.Mutex
	lastPartial  string
	finals       []string
	consolidated bool
}

// NewRecognizerSession wraps an engine.Session for one stream. If the
// config enables the transcribing placeholder, one is emitted here.
func NewRecognizerSession(callId CallId, channel Channel, cfg Config, clk clock.Clock, logger Logger, pub Publisher, sess engine.Session, engineName string) *RecognizerSession {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if clk == nil {
		clk = clock.New()
	}
	rs := &RecognizerSession{
		callId:     callId,
		channel:    channel,
		cfg:        cfg,
		clock:      clk,
		logger:     logger,
		pub:        pub,
		engine:     sess,
		engineName: engineName,
	}

	if cfg.EmitTranscribingPlaceholder {
		rs.publish(TranscriptStatus(StatusTranscribing), "", 0, 0, false)
	}

	return rs
}

// AcceptFrame feeds one frame to the recognizer and emits partial or
// completed events as appropriate. offsetBytes is the frame's start
// offset in the source file, used both for de-dup elsewhere and for
// event ordering (I2).
func (rs *RecognizerSession) AcceptFrame(frame []byte, offsetBytes int64) error {
	start := rs.clock.Now()
	isFinal, text, err := rs.engine.AcceptFrame(frame)
	elapsed := rs.clock.Now().Sub(start)

	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
		rs.logger.Warn("recognizer error on frame, dropping and continuing", "callId", rs.callId, "channel", rs.channel, "error", wrapped)
		return wrapped
	}

	if isFinal {
		rs.mu.Lock()
		rs.finals = append(rs.finals, text)
		rs.mu.Unlock()
		rs.publish(StatusCompleted, text, offsetBytes, elapsed, false)
		return nil
	}

	trimmed := strings.TrimSpace(text)
	rs.mu.Lock()
	suppressed := trimmed == strings.TrimSpace(rs.lastPartial)
	if !suppressed {
		rs.lastPartial = text
	}
	rs.mu.Unlock()

	if suppressed {
		return nil
	}

	rs.publish(StatusPartial, text, offsetBytes, elapsed, true)
	return nil
}

// Stop runs the Draining step: it emits a single consolidated event
// if any finals were produced, and never more than once (I6, P4).
func (rs *RecognizerSession) Stop() {
	rs.mu.Lock()
	alreadyDone := rs.consolidated
	finals := append([]string(nil), rs.finals...)
	rs.consolidated = true
	rs.mu.Unlock()

	if alreadyDone || len(finals) == 0 {
		if rs.engine != nil {
			if err := rs.engine.Close(); err != nil {
				rs.logger.Warn("recognizer close failed", "callId", rs.callId, "channel", rs.channel, "error", err)
			}
		}
		return
	}

	text := strings.Join(finals, " ")
	rs.publishConsolidated(text)

	if rs.engine != nil {
		if err := rs.engine.Close(); err != nil {
			rs.logger.Warn("recognizer close failed", "callId", rs.callId, "channel", rs.channel, "error", err)
		}
	}
}

func (rs *RecognizerSession) publishConsolidated(text string) {
	ev := TranscriptEvent{
		CallId:           rs.callId,
		TsMs:             rs.clock.Now().UnixMilli(),
		Speaker:          rs.channel.Speaker(),
		Lang:             rs.cfg.Language,
		OffsetBytes:      0,
		Status:           StatusConsolidated,
		Text:             text,
		ProcessingTimeMs: 0,
		Engine:           rs.engineName,
		Realtime:         false,
		Consolidated:     true,
	}
	if err := rs.pub.Publish(ev); err != nil {
		rs.logger.Warn("failed to publish consolidated event", "callId", rs.callId, "error", err)
	}
}

func (rs *RecognizerSession) publish(status TranscriptStatus, text string, offsetBytes int64, elapsed time.Duration, realtime bool) {
	processingMs := elapsed.Milliseconds()
	ceiling := rs.cfg.MaxProcessingTimeMs
	if ceiling <= 0 {
		ceiling = 30_000
	}
	if processingMs > ceiling {
		processingMs = ceiling
	}

	ev := TranscriptEvent{
		CallId:           rs.callId,
		TsMs:             rs.clock.Now().UnixMilli(),
		Speaker:          rs.channel.Speaker(),
		Lang:             rs.cfg.Language,
		OffsetBytes:      offsetBytes,
		Status:           status,
		Text:             text,
		ProcessingTimeMs: processingMs,
		Engine:           rs.engineName,
		Realtime:         realtime,
	}
	if err := rs.pub.Publish(ev); err != nil {
		rs.logger.Warn("failed to publish event", "callId", rs.callId, "status", status, "error", err)
	}
}

