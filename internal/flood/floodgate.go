// Package flood throttles playback state notifications per source.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the fixed time window for throttling (always 1 minute)
	windowDuration = 60 * time.Second
	// cleanupInterval is how often we clean up expired entries
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long before we remove idle source entries
	idleTimeout = 10 * time.Minute
)

// Floodgate provides per-source sliding window rate limiting for the state
// ingest endpoint. A misbehaving source that replays its state in a tight
// loop gets throttled without affecting other sources.
type Floodgate struct {
	limitPerMinute int
	entries        map[string]*sourceEntry
	mutex          sync.RWMutex
	stopCleanup    chan struct{}
}

// sourceEntry tracks notification timestamps for one source
type sourceEntry struct {
	timestamps []time.Time // Sliding window of notification timestamps
	lastSeen   time.Time   // When this source was last seen (for cleanup)
}

// New creates a new Floodgate with the specified per-minute limit. A limit
// of zero or less disables throttling: every event is allowed.
func New(limitPerMinute int) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*sourceEntry),
		stopCleanup:    make(chan struct{}),
	}

	go fg.cleanup()

	return fg
}

// Stop stops the background cleanup goroutine
func (fg *Floodgate) Stop() {
	close(fg.stopCleanup)
}

// CheckEvent reports whether a state notification from the given source
// should be processed, or blocked because the source exceeded its limit.
func (fg *Floodgate) CheckEvent(sourceID string) bool {
	if fg.limitPerMinute <= 0 {
		return true
	}

	now := time.Now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, exists := fg.entries[sourceID]
	if !exists {
		entry = &sourceEntry{
			timestamps: make([]time.Time, 0, fg.limitPerMinute+1),
		}
		fg.entries[sourceID] = entry
	}

	entry.lastSeen = now

	// Remove timestamps outside the window
	windowStart := now.Add(-windowDuration)
	validTimestamps := entry.timestamps[:0] // Reuse slice capacity
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			validTimestamps = append(validTimestamps, ts)
		}
	}
	entry.timestamps = validTimestamps

	if len(entry.timestamps) >= fg.limitPerMinute {
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

// cleanup removes idle source entries to prevent memory leaks
func (fg *Floodgate) cleanup() {
	// Run immediately on startup
	fg.performCleanup()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-fg.stopCleanup:
			return
		}
	}
}

// performCleanup removes entries that have been idle for too long
func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// GetStats returns statistics about the floodgate for monitoring/debugging
func (fg *Floodgate) GetStats() Stats {
	fg.mutex.RLock()
	defer fg.mutex.RUnlock()

	return Stats{
		ActiveSources:  len(fg.entries),
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()), // Fixed 1-minute window
	}
}

// Stats contains floodgate statistics
type Stats struct {
	ActiveSources  int `json:"active_sources"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}
