package media

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// ActivityEvent records one acquisition run in the activity log.
type ActivityEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	Requested     int       `json:"requested"`
	Images        int       `json:"images"`
	Videos        int       `json:"videos"`
	AudioTracks   int       `json:"audio_tracks"`
	TotalBytes    int64     `json:"total_bytes"`
	TotalReadable string    `json:"total_readable"`
	Partial       bool      `json:"partial"`
	FailedURLs    []string  `json:"failed_urls,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ActivityLog manages the acquisition log file (JSON lines format).
type ActivityLog struct {
	path string
	mu   sync.Mutex
	max  int // max entries to keep
}

// NewActivityLog creates a new activity log manager. An empty path disables logging.
func NewActivityLog(path string, maxEntries int) *ActivityLog {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &ActivityLog{
		path: path,
		max:  maxEntries,
	}
}

// Append adds an event to the activity log.
func (a *ActivityLog) Append(event ActivityEvent) error {
	if a == nil || a.path == "" {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create activity log dir: %w", err)
	}

	entries, _ := a.readEntriesLocked()

	event.Timestamp = time.Now()
	if event.TotalReadable == "" {
		event.TotalReadable = humanize.Bytes(uint64(event.TotalBytes))
	}
	entries = append(entries, event)

	if len(entries) > a.max {
		entries = entries[len(entries)-a.max:]
	}

	return a.writeEntriesLocked(entries)
}

// GetRecent returns the most recent events (newest first).
func (a *ActivityLog) GetRecent(limit int) ([]ActivityEvent, error) {
	if a == nil || a.path == "" {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.readEntriesLocked()
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (a *ActivityLog) readEntriesLocked() ([]ActivityEvent, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []ActivityEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event ActivityEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, event)
	}
	return entries, scanner.Err()
}

func (a *ActivityLog) writeEntriesLocked(entries []ActivityEvent) error {
	tmp := a.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write activity log: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close activity log: %w", err)
	}
	return os.Rename(tmp, a.path)
}
