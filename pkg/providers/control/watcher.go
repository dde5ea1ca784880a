// Package control implements the Control Plane Watcher: a polling loop
// over a relational table that gates which calls may be transcribed.
package control

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lokutor-ai/transflow-engine/pkg/orchestrator"
)

// transcriptionControl mirrors the control table of spec.md §4.2: one
// row per call, gated by IsEnabled.
type transcriptionControl struct {
	CallID    string `gorm:"column:call_id;primaryKey"`
	IsEnabled bool   `gorm:"column:is_enabled"`
}

func (transcriptionControl) TableName() string { return "transcription_control" }

// Watcher polls the control table every Config.ControlInterval,
// computes the newly-enabled / newly-disabled delta against the last
// known set, and applies it to an orchestrator.EnabledSet.
type Watcher struct {
	db       *gorm.DB
	enabled  *orchestrator.EnabledSet
	interval time.Duration
	clock    clock.Clock
	log      orchestrator.Logger
}

// New opens a MySQL connection via the given DSN and returns a Watcher
// that will keep enabled up to date once Run is called.
func New(dsn string, enabled *orchestrator.EnabledSet, interval time.Duration, clk clock.Clock, log orchestrator.Logger) (*Watcher, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = &orchestrator.NoOpLogger{}
	}
	return &Watcher{db: db, enabled: enabled, interval: interval, clock: clk, log: log}, nil
}

// Run polls until ctx is cancelled. Transient database errors are
// retried with bounded exponential back-off (spec.md §4.2); the
// last-known EnabledSet snapshot is kept untouched while retrying.
func (w *Watcher) Run(ctx context.Context) {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	w.pollWithRetry(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollWithRetry(ctx)
		}
	}
}

func (w *Watcher) pollWithRetry(ctx context.Context) {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	err := backoff.Retry(func() error {
		return w.poll(ctx)
	}, policy)
	if err != nil {
		w.log.Warn("control plane poll abandoned, keeping last-known set", "error", err)
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	var rows []transcriptionControl
	if err := w.db.WithContext(ctx).Select("call_id").Where("is_enabled = ?", true).Find(&rows).Error; err != nil {
		w.log.Warn("control plane query failed, retrying", "error", err)
		return err
	}

	next := make(map[orchestrator.CallId]struct{}, len(rows))
	for _, r := range rows {
		next[orchestrator.CallId(r.CallID)] = struct{}{}
	}

	added, removed := w.enabled.Replace(next)
	if len(added) > 0 {
		w.log.Info("calls newly enabled", "count", len(added))
	}
	if len(removed) > 0 {
		w.log.Info("calls newly disabled", "count", len(removed))
	}
	return nil
}
