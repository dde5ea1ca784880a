package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCallFilename(t *testing.T) {
	cases := []struct {
		name        string
		wantCallId  CallId
		wantChannel Channel
		wantOK      bool
	}{
		{"33600000000-0601020304-in.raw", "33600000000-0601020304", ChannelInbound, true},
		{"33600000000-0601020304-out.raw", "33600000000-0601020304", ChannelOutbound, true},
		{"33600000000-0601020304-mixed.wav", "33600000000-0601020304", ChannelMixed, true},
		{"onlyonefield.raw", "", "", false},
	}

	for _, c := range cases {
		callId, channel, ok := ParseCallFilename(c.name)
		if ok != c.wantOK {
			t.Errorf("%s: expected ok=%v, got %v", c.name, c.wantOK, ok)
			continue
		}
		if !ok {
			continue
		}
		if callId != c.wantCallId {
			t.Errorf("%s: expected callId %s, got %s", c.name, c.wantCallId, callId)
		}
		if channel != c.wantChannel {
			t.Errorf("%s: expected channel %s, got %s", c.name, c.wantChannel, channel)
		}
	}
}

func TestScannerGroupsByCallAndFiltersRecency(t *testing.T) {
	dir := t.TempDir()

	fresh := filepath.Join(dir, "33600000000-0601020304-in.raw")
	if err := os.WriteFile(fresh, []byte{0, 1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}

	stale := filepath.Join(dir, "33600000001-0601020305-in.raw")
	if err := os.WriteFile(stale, []byte{0, 1}, 0644); err != nil {
		t.Fatal(err)
	}
	staleTime := time.Now().Add(-120 * time.Second)
	if err := os.Chtimes(stale, staleTime, staleTime); err != nil {
		t.Fatal(err)
	}

	s := NewScanner(dir, 30*time.Second, nil)
	calls, err := s.Scan(time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := calls["33600000000-0601020304"]; !ok {
		t.Error("expected fresh call discovered")
	}
	if _, ok := calls["33600000001-0601020305"]; ok {
		t.Error("expected stale call filtered out (S5)")
	}
}

func TestScannerIgnoresNonAudioExtensions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "33600000000-0601020304-in.txt"), []byte{0}, 0644); err != nil {
		t.Fatal(err)
	}

	s := NewScanner(dir, 30*time.Second, nil)
	calls, err := s.Scan(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 0 {
		t.Errorf("expected no calls discovered, got %v", calls)
	}
}
