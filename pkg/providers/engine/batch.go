package engine

import (
	"context"
	"strings"
	"sync"
)

// transcribeFunc is satisfied by each adapted batch HTTP provider's
// one-shot transcription call.
type transcribeFunc func(ctx context.Context, pcm []byte, lang string) (string, error)

// batchSession adapts a one-shot "send audio, get text back" HTTP
// provider to the streaming Session interface required by spec.md §6.
// It accumulates PCM across AcceptFrame calls and re-invokes the
// batch endpoint on the growing buffer to approximate incremental
// partials, the way the teacher's pkg/providers/stt adapters did for
// its own batch-per-utterance pipeline. Two consecutive identical
// transcriptions are treated as converged and reported final, since a
// batch endpoint otherwise has no notion of segment finality mid-call.
type batchSession struct {
	transcribe transcribeFunc
	lang       string

	mu        sync.Mutex
	buf       []byte
	lastText  string
	result    string
	hasResult bool
}

func newBatchSession(fn transcribeFunc, lang string) *batchSession {
	return &batchSession{transcribe: fn, lang: lang}
}

func (s *batchSession) AcceptFrame(frame []byte) (bool, string, error) {
	s.mu.Lock()
	s.buf = append(s.buf, frame...)
	buf := append([]byte(nil), s.buf...)
	s.mu.Unlock()

	text, err := s.transcribe(context.Background(), buf, s.lang)
	if err != nil {
		return false, "", err
	}
	text = strings.TrimSpace(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	converged := text != "" && text == s.lastText
	s.lastText = text

	if converged {
		s.result = text
		s.hasResult = true
		s.buf = nil
		s.lastText = ""
		return true, text, nil
	}
	return false, text, nil
}

func (s *batchSession) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText
}

func (s *batchSession) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *batchSession) SetWords(bool) {}

func (s *batchSession) Close() error { return nil }
