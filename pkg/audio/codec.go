package audio

import (
	"bufio"
	"encoding/binary"
	"io"
)

// BytesPerSample is the width of one signed 16-bit PCM sample.
const BytesPerSample = 2

// DecodePCM reinterprets raw little-endian 16-bit PCM as normalized
// float32 samples in [-1, 1]. An odd trailing byte is ignored by the
// caller's responsibility to pass whole-sample-aligned input; decoding
// never panics on a short tail, it simply stops one sample early.
func DecodePCM(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return nil
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

// UpsampleTo16k linearly interpolates 8 kHz samples to 16 kHz, doubling
// the sample count. An empty input yields an empty output.
func UpsampleTo16k(samples []float32) []float32 {
	n := len(samples)
	if n == 0 {
		return nil
	}
	out := make([]float32, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = samples[i]
		if i+1 < n {
			out[i*2+1] = (samples[i] + samples[i+1]) / 2
		} else {
			out[i*2+1] = samples[i]
		}
	}
	return out
}

// WavHeaderSize is the size of the canonical 44-byte PCM WAV header
// produced by NewWavBuffer; WavPayloadReader/Strip skip exactly this
// many bytes before handing the caller raw PCM.
const WavHeaderSize = 44

// WavPayloadReader yields only the raw PCM payload of a WAV container,
// skipping the fixed-size header once. It carries over any trailing
// partial sample (an odd byte count) to the next call so callers
// always see whole-sample-aligned frames, per the accumulate-on-tail-
// read rule in spec.md §4.1's edge cases. It can be driven either as
// an io.Reader over a whole container (Read) or incrementally, fed
// raw bytes as they arrive from a file being tailed (Strip).
type WavPayloadReader struct {
	r               *bufio.Reader
	headerRemaining int
	carry           []byte
}

// NewWavPayloadReader returns a WavPayloadReader over r. If isWav is
// false (raw PCM input, no container), no header is skipped.
func NewWavPayloadReader(r io.Reader, isWav bool) *WavPayloadReader {
	w := NewWavPayloadStripper(0)
	if isWav {
		w.headerRemaining = WavHeaderSize
	}
	w.r = bufio.NewReader(r)
	return w
}

// NewWavPayloadStripper returns a WavPayloadReader driven only via
// Strip, with headerRemaining bytes of header still to be discarded
// (0 for raw PCM, or for a WAV tail that resumes past the header).
func NewWavPayloadStripper(headerRemaining int) *WavPayloadReader {
	return &WavPayloadReader{headerRemaining: headerRemaining}
}

// Read returns up to len(p) bytes of sample-aligned PCM payload. It
// implements io.Reader. A p shorter than one sample yields
// io.ErrShortBuffer.
func (w *WavPayloadReader) Read(p []byte) (int, error) {
	want := len(p) - len(p)%BytesPerSample - len(w.carry)
	if want <= 0 {
		return 0, io.ErrShortBuffer
	}
	buf := make([]byte, want)
	n, err := w.r.Read(buf)
	if n == 0 {
		return 0, err
	}
	usable := w.Strip(buf[:n])
	copy(p, usable)
	return len(usable), err
}

// Strip consumes raw bytes freshly read from a WAV (or raw PCM)
// stream, discarding any still-pending header bytes and carrying an
// odd trailing byte over to the next call, so the caller only ever
// sees sample-aligned PCM payload.
func (w *WavPayloadReader) Strip(raw []byte) []byte {
	if w.headerRemaining > 0 {
		if len(raw) <= w.headerRemaining {
			w.headerRemaining -= len(raw)
			return nil
		}
		raw = raw[w.headerRemaining:]
		w.headerRemaining = 0
	}

	combined := append(w.carry, raw...)
	usable := len(combined) - (len(combined) % BytesPerSample)
	w.carry = append([]byte(nil), combined[usable:]...)
	return combined[:usable]
}
