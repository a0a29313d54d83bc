package flood

import (
	"testing"
	"time"
)

func TestFloodgate_CheckEvent_AllowsNormalUsage(t *testing.T) {
	fg := New(3) // 3 events per minute
	defer fg.Stop()

	sourceID := "media_player.living_room"

	// Should allow first 3 events
	for i := 0; i < 3; i++ {
		if !fg.CheckEvent(sourceID) {
			t.Errorf("Event %d should be allowed", i+1)
		}
	}

	// 4th event should be blocked
	if fg.CheckEvent(sourceID) {
		t.Error("4th event should be blocked")
	}
}

func TestFloodgate_CheckEvent_SlidingWindow(t *testing.T) {
	// This test verifies the sliding window concept but doesn't wait the full
	// 60 seconds. Instead we simulate time passing by manipulating internal state.
	fg := New(2) // 2 events per minute
	defer fg.Stop()

	sourceID := "media_player.living_room"

	if !fg.CheckEvent(sourceID) {
		t.Error("First event should be allowed")
	}
	if !fg.CheckEvent(sourceID) {
		t.Error("Second event should be allowed")
	}
	if fg.CheckEvent(sourceID) {
		t.Error("Third event should be blocked")
	}

	// Move timestamps back by 61 seconds to simulate window expiry
	fg.mutex.Lock()
	if entry, exists := fg.entries[sourceID]; exists {
		pastTime := time.Now().Add(-61 * time.Second)
		for i := range entry.timestamps {
			entry.timestamps[i] = pastTime
		}
	}
	fg.mutex.Unlock()

	// Should allow events again after simulated window slide
	if !fg.CheckEvent(sourceID) {
		t.Error("Event after window slide should be allowed")
	}
}

func TestFloodgate_CheckEvent_PerSource(t *testing.T) {
	fg := New(2) // 2 events per minute
	defer fg.Stop()

	// Different sources have separate limits
	for i := 0; i < 2; i++ {
		if !fg.CheckEvent("media_player.living_room") {
			t.Errorf("Event %d from living room should be allowed", i+1)
		}
		if !fg.CheckEvent("media_player.kitchen") {
			t.Errorf("Event %d from kitchen should be allowed", i+1)
		}
	}

	// Both sources are now at their limits
	if fg.CheckEvent("media_player.living_room") {
		t.Error("Extra event from living room should be blocked")
	}
	if fg.CheckEvent("media_player.kitchen") {
		t.Error("Extra event from kitchen should be blocked")
	}
}

func TestFloodgate_GetStats(t *testing.T) {
	fg := New(5)
	defer fg.Stop()

	stats := fg.GetStats()
	if stats.ActiveSources != 0 {
		t.Errorf("Expected 0 active sources initially, got %d", stats.ActiveSources)
	}
	if stats.LimitPerMinute != 5 {
		t.Errorf("Expected limit per minute 5, got %d", stats.LimitPerMinute)
	}
	if stats.WindowSeconds != 60 {
		t.Errorf("Expected window seconds 60, got %d", stats.WindowSeconds)
	}

	fg.CheckEvent("media_player.living_room")
	fg.CheckEvent("media_player.kitchen")
	fg.CheckEvent("media_player.living_room") // repeat source

	stats = fg.GetStats()
	if stats.ActiveSources != 2 {
		t.Errorf("Expected 2 active sources, got %d", stats.ActiveSources)
	}
}

func TestFloodgate_EdgeCases(t *testing.T) {
	t.Run("Zero limit disables throttling", func(t *testing.T) {
		fg := New(0)
		defer fg.Stop()

		for i := 0; i < 100; i++ {
			if !fg.CheckEvent("media_player.living_room") {
				t.Fatal("Events should always be allowed with throttling disabled")
			}
		}
	})

	t.Run("Empty source id", func(t *testing.T) {
		fg := New(1)
		defer fg.Stop()

		if !fg.CheckEvent("") {
			t.Error("Should allow event with empty source id")
		}
		if fg.CheckEvent("") {
			t.Error("Second event with empty source id should be blocked")
		}
	})
}

func TestFloodgate_Cleanup(t *testing.T) {
	fg := New(1)
	defer fg.Stop()

	fg.CheckEvent("media_player.living_room")
	fg.CheckEvent("media_player.kitchen")

	// Trigger manual cleanup (this would normally happen in background)
	fg.performCleanup()

	// Should still work after cleanup
	if !fg.CheckEvent("media_player.bedroom") {
		t.Error("Should work after cleanup")
	}
}

func TestFloodgate_ConcurrentAccess(t *testing.T) {
	fg := New(10)
	defer fg.Stop()

	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 5; j++ {
				fg.CheckEvent("media_player.living_room")
				fg.GetStats()
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	stats := fg.GetStats()
	if stats.ActiveSources < 0 {
		t.Error("Stats should be valid after concurrent access")
	}
}
