package orchestrator

import (
	"os"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/lokutor-ai/transflow-engine/pkg/audio"
)

// StreamTailer is one worker per (CallId, Channel) — the co-located
// tailer + recognizer session of spec.md §4.4/§4.5/§5. It owns a
// monotone byte offset (I5), reads newly appended bytes, splits them
// into fixed-duration frames, de-dups by (path, startOffset) (I3),
// and feeds each frame to its private RecognizerSession.
//
// Lifecycle (closeOnce-guarded stop channel, done channel closed when
// Run returns) follows the teacher's ManagedStream/internalInterrupt
// pattern, adapted: there is no barge-in here, only a hard stop
// (EnabledSet removal or Stop) and a soft stop (idle timeout).
type StreamTailer struct {
	path    string
	state   *StreamState
	session *RecognizerSession
	cfg     Config
	clock   clock.Clock
	logger  Logger
	enabled *EnabledSet

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu               sync.Mutex
	payload          *audio.WavPayloadReader
	payloadDelivered int64 // cumulative stripped PCM bytes produced so far
	residue          []byte
}

// NewStreamTailer constructs a tailer for one (callId, channel) file,
// seeded with the tail-start offset computed from the file's current
// size (spec.md §4.4 "tail start" policy, P6). For a .wav file, the
// disk offset still governs how much of the file has been read, but
// frame de-dup keys and reported offsets run in header-stripped
// payload-byte space via a WavPayloadReader (spec.md §4.1), so the
// 44-byte RIFF header never shifts frame boundaries or feeds the
// recognizer as PCM.
func NewStreamTailer(file AudioFile, cfg Config, clk clock.Clock, logger Logger, enabled *EnabledSet, session *RecognizerSession) *StreamTailer {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if clk == nil {
		clk = clock.New()
	}
	startOffset := cfg.TailStartOffset(file.Size)
	state := newStreamState(file.CallId, file.Channel, startOffset)
	state.LastActivity.Store(file.ModTime.UnixNano())

	headerRemaining := 0
	payloadStart := startOffset
	if file.IsWav {
		if startOffset < audio.WavHeaderSize {
			headerRemaining = int(audio.WavHeaderSize - startOffset)
			payloadStart = 0
		} else {
			payloadStart = startOffset - audio.WavHeaderSize
		}
	}

	return &StreamTailer{
		path:             file.Path,
		state:            state,
		session:          session,
		cfg:              cfg,
		clock:            clk,
		logger:           logger,
		enabled:          enabled,
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
		payload:          audio.NewWavPayloadStripper(headerRemaining),
		payloadDelivered: payloadStart,
	}
}

// CallId and Channel identify the stream this tailer owns.
func (t *StreamTailer) CallId() CallId   { return t.state.CallId }
func (t *StreamTailer) Channel() Channel { return t.state.Channel }

// Stop signals the tailer to exit and blocks until it has (I6).
func (t *StreamTailer) Stop() {
	t.closeOnce.Do(func() {
		close(t.stop)
	})
	<-t.done
}

// Run is the tailer's main loop; it returns (and closes done) when
// the call is no longer enabled or the file has gone idle.
func (t *StreamTailer) Run() {
	defer func() {
		t.session.Stop()
		close(t.done)
	}()

	ticker := t.clock.Ticker(t.cfg.TailInterval)
	defer ticker.Stop()

	for {
		if !t.enabled.Contains(t.state.CallId) {
			t.logger.Debug("stream stopping", "callId", t.state.CallId, "channel", t.state.Channel, "error", ErrCallNotEnabled)
			return
		}

		info, err := os.Stat(t.path)
		if err != nil {
			// Transient IO: file briefly missing or stat failed — log
			// and retry next iteration (spec.md §7).
			t.logger.Debug("stat failed, will retry", "path", t.path, "error", err)
		} else {
			if t.clock.Now().Sub(info.ModTime()) > t.cfg.IdleTimeout {
				t.logger.Debug("stream stopping", "callId", t.state.CallId, "channel", t.state.Channel, "error", ErrStreamIdle)
				return
			}
			t.state.LastActivity.Store(info.ModTime().UnixNano())

			if err := t.readAndDispatch(info.Size()); err != nil {
				t.logger.Debug("tail read error, will retry", "path", t.path, "error", err)
			}
		}

		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
}

// readAndDispatch reads size-offset new raw bytes from disk and runs
// them through the WAV payload stripper (a no-op for raw PCM files),
// prepends any sub-frame residue left over from the previous
// iteration, splits the result into frameBytes-sized frames, and feeds
// each whole frame to the recognizer session.
//
// Offset tracks the raw disk read position, so residue bytes are
// never re-read from disk on the next iteration (spec.md §9's
// "residue buffer, not silent drop" REDESIGN note). Frame de-dup keys
// and reported offsets run in payload-byte space (payloadDelivered),
// which excludes the WAV header entirely — a raw disk offset would
// shift every frame boundary by the header size once one exists.
func (t *StreamTailer) readAndDispatch(size int64) error {
	diskOffset := t.state.Offset.Load()
	if size <= diskOffset {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	toRead := size - diskOffset
	buf := make([]byte, toRead)
	if _, err := f.ReadAt(buf, diskOffset); err != nil {
		return err
	}

	t.mu.Lock()
	stripped := t.payload.Strip(buf)
	oldResidueLen := int64(len(t.residue))
	combined := append(t.residue, stripped...)
	combinedStart := t.payloadDelivered - oldResidueLen
	t.payloadDelivered += int64(len(stripped))
	t.mu.Unlock()

	frameBytes := t.cfg.FrameBytes()
	if frameBytes <= 0 {
		return nil
	}

	nFrames := int64(len(combined)) / frameBytes
	consumed := int64(0)

	for i := int64(0); i < nFrames; i++ {
		frame := combined[i*frameBytes : (i+1)*frameBytes]
		frameStart := combinedStart + consumed

		if !t.state.seen(frameStart) {
			if err := t.session.AcceptFrame(frame, frameStart); err != nil {
				t.logger.Debug("session accept error", "callId", t.state.CallId, "error", err)
			}
		}
		consumed += frameBytes
	}

	t.mu.Lock()
	t.residue = append([]byte(nil), combined[consumed:]...)
	t.mu.Unlock()

	t.state.Offset.Store(diskOffset + toRead)
	return nil
}
