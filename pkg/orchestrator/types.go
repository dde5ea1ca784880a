package orchestrator

import (
	"time"

	"go.uber.org/atomic"
)

// Logger is the minimal structured-logging surface every component
// depends on; NoOpLogger satisfies it when no logging is wanted.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Useful in tests and as a safe
// default when no Logger is supplied.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// CallId is the opaque call identifier derived from the first two
// dash-separated fields of an audio filename.
type CallId string

// Channel is a call direction, derived from the filename, never
// inferred acoustically.
type Channel string

const (
	ChannelInbound  Channel = "inbound"
	ChannelOutbound Channel = "outbound"
	ChannelMixed    Channel = "mixed"
)

// Speaker returns the output-facing speaker label for a channel.
func (c Channel) Speaker() string {
	switch c {
	case ChannelInbound:
		return "client"
	case ChannelOutbound:
		return "agent"
	default:
		return "mixed"
	}
}

// AudioFile describes one discovered file on disk for one channel of
// one call.
type AudioFile struct {
	Path    string
	CallId  CallId
	Channel Channel
	Size    int64
	ModTime time.Time
	IsWav   bool
}

// TranscriptStatus is the lifecycle stage of a published event.
type TranscriptStatus string

const (
	StatusPartial      TranscriptStatus = "partial"
	StatusCompleted    TranscriptStatus = "completed"
	StatusConsolidated TranscriptStatus = "consolidated"
	StatusTranscribing TranscriptStatus = "transcribing"
)

// TranscriptEvent is one published, ephemeral transcript message.
type TranscriptEvent struct {
	CallId           CallId           `json:"callId"`
	TsMs             int64            `json:"tsMs"`
	Speaker          string           `json:"speaker"`
	Lang             string           `json:"lang"`
	Confidence       *float64         `json:"confidence"`
	OffsetBytes      int64            `json:"offsetBytes"`
	Status           TranscriptStatus `json:"status"`
	Text             string           `json:"text"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	Engine           string           `json:"engine"`
	Realtime         bool             `json:"realtime"`
	Consolidated     bool             `json:"consolidated,omitempty"`
}

// StreamState is the per-(call, channel) mutable record described in
// spec.md §3: a monotone read offset, last-activity time, last
// emitted partial, accumulated finals, and a chunk de-dup set. Fields
// are typed, never string-concatenated map keys (REDESIGN note §9).
type StreamState struct {
	CallId        CallId
	Channel       Channel
	Offset        atomic.Int64
	LastActivity  atomic.Int64 // unix nano
	lastPartial   string
	finals        []string
	seenChunks    map[int64]struct{} // keyed by frame start offset
	consolidated  bool
}

func newStreamState(callId CallId, channel Channel, startOffset int64) *StreamState {
	s := &StreamState{
		CallId:     callId,
		Channel:    channel,
		seenChunks: make(map[int64]struct{}),
	}
	s.Offset.Store(startOffset)
	return s
}

// seen reports whether the frame starting at startOffset was already
// fed to the recognizer for this stream (I3), marking it seen if not.
func (s *StreamState) seen(startOffset int64) bool {
	if _, ok := s.seenChunks[startOffset]; ok {
		return true
	}
	s.seenChunks[startOffset] = struct{}{}
	return false
}

// CallState groups the StreamStates of a single call while it is
// admitted.
type CallState struct {
	CallId    CallId
	Status    string // "active" | "stopped"
	StartedAt time.Time
	Streams   map[Channel]*StreamState
}

func newCallState(callId CallId) *CallState {
	return &CallState{
		CallId:    callId,
		Status:    "active",
		StartedAt: time.Now(),
		Streams:   make(map[Channel]*StreamState),
	}
}

// Config holds the process-wide options of spec.md §6.
type Config struct {
	MonitorDir           string
	BusURL               string
	ChannelName          string
	ModelPath            string
	Language             string
	SampleRate           int
	FrameSeconds         int
	ScanInterval         time.Duration
	TailInterval         time.Duration
	ControlInterval      time.Duration
	MaxStreams           int
	IdleTimeout          time.Duration
	StartBackSeconds     int
	MaxProcessingTimeMs  int64
	EmitTranscribingPlaceholder bool
}

// DefaultConfig returns the defaults from spec.md §6.
func DefaultConfig() Config {
	return Config{
		MonitorDir:                  "/var/spool/calls",
		BusURL:                      "redis://127.0.0.1:6379/0",
		ChannelName:                 "transcripts.realtime.v2",
		ModelPath:                   "",
		Language:                    "fr",
		SampleRate:                  8000,
		FrameSeconds:                10,
		ScanInterval:                500 * time.Millisecond,
		TailInterval:                200 * time.Millisecond,
		ControlInterval:             2 * time.Second,
		MaxStreams:                  100,
		IdleTimeout:                 30 * time.Second,
		StartBackSeconds:            15,
		MaxProcessingTimeMs:         30_000,
		EmitTranscribingPlaceholder: false,
	}
}

// FrameBytes returns the exact frame size in bytes for this config:
// sampleRate * 2 bytes/sample * frameSeconds (spec.md §4.4).
func (c Config) FrameBytes() int64 {
	return int64(c.SampleRate) * 2 * int64(c.FrameSeconds)
}

// TailStartOffset returns the initial read offset for a file of the
// given size on admission (spec.md §4.4's "tail start" policy).
func (c Config) TailStartOffset(size int64) int64 {
	back := int64(c.StartBackSeconds) * int64(c.SampleRate) * 2
	if size-back < 0 {
		return 0
	}
	return size - back
}
