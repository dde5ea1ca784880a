package control

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lokutor-ai/transflow-engine/pkg/orchestrator"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&transcriptionControl{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return &Watcher{
		db:      db,
		enabled: orchestrator.NewEnabledSet(),
		log:     &orchestrator.NoOpLogger{},
	}
}

func TestWatcherPollComputesEnabledSet(t *testing.T) {
	w := newTestWatcher(t)

	w.db.Create(&transcriptionControl{CallID: "1-1", IsEnabled: true})
	w.db.Create(&transcriptionControl{CallID: "2-2", IsEnabled: false})

	if err := w.poll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !w.enabled.Contains("1-1") {
		t.Error("expected 1-1 to be enabled")
	}
	if w.enabled.Contains("2-2") {
		t.Error("expected 2-2 to remain disabled")
	}
}

func TestWatcherPollReflectsLaterDisable(t *testing.T) {
	w := newTestWatcher(t)

	w.db.Create(&transcriptionControl{CallID: "1-1", IsEnabled: true})
	if err := w.poll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.enabled.Contains("1-1") {
		t.Fatal("expected 1-1 to be enabled after first poll")
	}

	w.db.Model(&transcriptionControl{}).Where("call_id = ?", "1-1").Update("is_enabled", false)
	if err := w.poll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.enabled.Contains("1-1") {
		t.Error("expected 1-1 to be disabled after second poll")
	}
}
