// Package fswatch provides an optional fast-path notifier that wakes
// the Orchestrator's reconciliation loop early when new files appear
// in the monitored directory, on top of (never instead of) its
// mandatory poll interval.
package fswatch

import (
	"github.com/fsnotify/fsnotify"

	"github.com/lokutor-ai/transflow-engine/pkg/orchestrator"
)

// Notifier wraps an fsnotify.Watcher on a single directory and
// forwards a signal on Notify whenever a file is created or written.
// The channel is buffered to depth 1 and never blocks: a pending
// signal is coalesced with any new one, since all the Orchestrator
// needs is "something changed, reconcile early" — not an event log.
type Notifier struct {
	watcher *fsnotify.Watcher
	notify  chan struct{}
	log     orchestrator.Logger
}

// New starts watching dir and returns a Notifier. Callers should read
// from Notify() in a select alongside their regular ticker.
func New(dir string, log orchestrator.Logger) (*Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if log == nil {
		log = &orchestrator.NoOpLogger{}
	}

	n := &Notifier{watcher: w, notify: make(chan struct{}, 1), log: log}
	go n.run()
	return n, nil
}

func (n *Notifier) run() {
	for {
		select {
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				n.signal()
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.log.Warn("fswatch error", "error", err)
		}
	}
}

func (n *Notifier) signal() {
	select {
	case n.notify <- struct{}{}:
	default:
	}
}

// Notify returns the channel the Orchestrator should select on
// alongside its scan ticker.
func (n *Notifier) Notify() <-chan struct{} {
	return n.notify
}

// Close stops watching and releases the underlying inotify/kqueue
// handle.
func (n *Notifier) Close() error {
	return n.watcher.Close()
}
