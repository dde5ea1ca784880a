package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// audioExtensions are the file extensions the scanner admits, per
// spec.md §4.3.
var audioExtensions = map[string]bool{
	".raw": true,
	".pcm": true,
	".wav": true,
}

// Scanner walks a monitored directory and groups audio files into
// calls. It is pure observation: it never mutates process state.
type Scanner struct {
	dir           string
	recencyWindow time.Duration
	logger        Logger
}

// NewScanner returns a Scanner rooted at dir, admitting only files
// modified within recencyWindow of now.
func NewScanner(dir string, recencyWindow time.Duration, logger Logger) *Scanner {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Scanner{dir: dir, recencyWindow: recencyWindow, logger: logger}
}

// Scan lists the monitored directory and groups discovered files by
// callId, per spec.md §4.3's three-step procedure. Filesystem errors
// reading the directory are returned; a file whose name cannot be
// parsed is skipped and logged at debug level with ErrMalformedFilename.
func (s *Scanner) Scan(now time.Time) (map[CallId][]AudioFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	result := make(map[CallId][]AudioFile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !audioExtensions[ext] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > s.recencyWindow {
			continue
		}

		callId, channel, ok := ParseCallFilename(name)
		if !ok {
			s.logger.Debug("skipping unparsable filename", "name", name, "error", ErrMalformedFilename)
			continue
		}

		file := AudioFile{
			Path:    filepath.Join(s.dir, name),
			CallId:  callId,
			Channel: channel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsWav:   ext == ".wav",
		}
		result[callId] = append(result[callId], file)
	}

	return result, nil
}

// ParseCallFilename applies spec.md §4.3's naming convention:
// basename split on "-", callId = field[0]+"-"+field[1], channel by
// "in"/"out" substring token. Grounded on the "in"/"out" membership
// check in the original Python source's filename classifier.
func ParseCallFilename(name string) (CallId, Channel, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "-")
	if len(parts) < 2 {
		return "", "", false
	}

	callId := CallId(parts[0] + "-" + parts[1])

	lower := strings.ToLower(base)
	channel := ChannelMixed
	switch {
	case strings.Contains(lower, "in"):
		channel = ChannelInbound
	case strings.Contains(lower, "out"):
		channel = ChannelOutbound
	}

	return callId, channel, true
}
