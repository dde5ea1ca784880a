// Package stub provides a scripted, in-memory recognizer used by the
// test suite to exercise end-to-end scenarios deterministically,
// without a real decoder or network call.
package stub

import (
	"sync"

	"github.com/lokutor-ai/transflow-engine/pkg/providers/engine"
)

// Step is one scripted recognizer response to a single AcceptFrame
// call.
type Step struct {
	Final bool
	Text  string
}

// Factory hands out Sessions, each pre-loaded with its own script.
// Scripts are consumed in order, keyed by session creation order.
type Factory struct {
	mu      sync.Mutex
	scripts [][]Step
	created int
	name    string
}

// NewFactory returns a Factory that will replay scripts in the order
// NewSession is called; a session with no script left returns an
// empty partial for every frame.
func NewFactory(name string, scripts ...[]Step) *Factory {
	return &Factory{scripts: scripts, name: name}
}

func (f *Factory) Name() string { return f.name }

func (f *Factory) NewSession(sampleRate int) (engine.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var script []Step
	if f.created < len(f.scripts) {
		script = f.scripts[f.created]
	}
	f.created++

	return &session{script: script}, nil
}

type session struct {
	mu      sync.Mutex
	script  []Step
	pos     int
	partial string
	result  string
}

func (s *session) AcceptFrame(frame []byte) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.script) {
		return false, s.partial, nil
	}
	step := s.script[s.pos]
	s.pos++

	if step.Final {
		s.result = step.Text
	} else {
		s.partial = step.Text
	}
	return step.Final, step.Text, nil
}

func (s *session) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial
}

func (s *session) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *session) SetWords(bool) {}

func (s *session) Close() error { return nil }
