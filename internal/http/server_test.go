package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"trackart/internal/core"
)

type stubManager struct {
	mutex     sync.Mutex
	events    map[string]map[string]string
	snapshots []core.CoverData
}

func newStubManager(snapshots ...core.CoverData) *stubManager {
	return &stubManager{
		events:    make(map[string]map[string]string),
		snapshots: snapshots,
	}
}

func (m *stubManager) HandleStateChange(sourceID string, attrs map[string]string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events[sourceID] = attrs
}

func (m *stubManager) Data(sourceID string) (core.CoverData, bool) {
	for _, data := range m.snapshots {
		if data.SourceID == sourceID {
			return data, true
		}
	}
	return core.CoverData{}, false
}

func (m *stubManager) Snapshot() []core.CoverData {
	return m.snapshots
}

func (m *stubManager) lastEvent(sourceID string) (map[string]string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	attrs, exists := m.events[sourceID]
	return attrs, exists
}

func newTestServer(t *testing.T, manager Manager) (*Metrics, *httptest.Server) {
	t.Helper()

	config := &core.ServerConfig{
		Host:                 "127.0.0.1",
		Port:                 0,
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         5 * time.Second,
		IngestLimitPerMinute: 0, // throttling disabled unless a test enables it
	}

	metrics := NewMetrics()
	server := NewServer(config, manager, metrics, zap.NewNop())
	ts := httptest.NewServer(server.routes())
	t.Cleanup(ts.Close)
	t.Cleanup(server.gate.Stop)

	return metrics, ts
}

func readyCover() core.CoverData {
	return core.CoverData{
		SourceID:    "media_player.living_room",
		TrackKey:    "daft punk|one more time|discovery",
		Artist:      "Daft Punk",
		Title:       "One More Time",
		Album:       "Discovery",
		Provider:    "itunes",
		ArtworkURL:  "https://example.com/600x600bb.jpg",
		ContentType: "image/jpeg",
		Image:       []byte("jpeg-bytes"),
		LastUpdated: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:      core.StatusReady,
	}
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t, newStubManager())

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned status %d", path, resp.StatusCode)
		}
		if contentType := resp.Header.Get("Content-Type"); contentType != "application/json" {
			t.Errorf("%s Content-Type = %q", path, contentType)
		}
		if !strings.Contains(string(body), "trackartd") {
			t.Errorf("%s body = %q, expected service name", path, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics, ts := newTestServer(t, newStubManager())

	metrics.ObserveResolution("itunes", core.StatusReady, 120*time.Millisecond)
	metrics.ObserveResolutionError("musicbrainz")
	metrics.SetActiveSources(2)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics returned status %d", resp.StatusCode)
	}

	text := string(body)
	for _, metric := range []string{
		`trackart_resolutions_total{provider="itunes",status="ready"} 1`,
		`trackart_resolution_errors_total{provider="musicbrainz"} 1`,
		`trackart_active_sources 2`,
	} {
		if !strings.Contains(text, metric) {
			t.Errorf("metrics output missing %q", metric)
		}
	}
}

func TestListSources(t *testing.T) {
	_, ts := newTestServer(t, newStubManager(readyCover()))

	resp, err := http.Get(ts.URL + "/sources")
	if err != nil {
		t.Fatalf("GET /sources: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/sources returned status %d", resp.StatusCode)
	}

	text := string(body)
	if !strings.Contains(text, `"source_id":"media_player.living_room"`) {
		t.Errorf("listing missing source id: %s", text)
	}
	if !strings.Contains(text, `"status":"ready"`) {
		t.Errorf("listing missing status: %s", text)
	}
	// Image bytes must never be inlined in JSON.
	if strings.Contains(text, "jpeg-bytes") {
		t.Error("listing leaked raw image bytes")
	}
	if !strings.Contains(text, `"image_bytes":10`) {
		t.Errorf("listing missing image size: %s", text)
	}
}

func TestGetSource(t *testing.T) {
	_, ts := newTestServer(t, newStubManager(readyCover()))

	resp, err := http.Get(ts.URL + "/sources/media_player.living_room")
	if err != nil {
		t.Fatalf("GET source: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("source returned status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"artist":"Daft Punk"`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestGetSource_Unknown(t *testing.T) {
	_, ts := newTestServer(t, newStubManager())

	resp, err := http.Get(ts.URL + "/sources/media_player.attic")
	if err != nil {
		t.Fatalf("GET source: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown source returned status %d, want 404", resp.StatusCode)
	}
}

func TestStateEvent(t *testing.T) {
	manager := newStubManager()
	_, ts := newTestServer(t, manager)

	body := `{"attributes":{"media_artist":"Daft Punk","media_title":"One More Time"}}`
	resp, err := http.Post(
		ts.URL+"/sources/media_player.living_room/state",
		"application/json",
		strings.NewReader(body),
	)
	if err != nil {
		t.Fatalf("POST state: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("state event returned status %d, want 202", resp.StatusCode)
	}

	attrs, exists := manager.lastEvent("media_player.living_room")
	if !exists {
		t.Fatal("state event was not routed to the manager")
	}
	if attrs[core.AttrMediaArtist] != "Daft Punk" {
		t.Errorf("routed attrs = %v", attrs)
	}
}

func TestStateEvent_MalformedBody(t *testing.T) {
	manager := newStubManager()
	_, ts := newTestServer(t, manager)

	resp, err := http.Post(
		ts.URL+"/sources/media_player.living_room/state",
		"application/json",
		strings.NewReader("{not json"),
	)
	if err != nil {
		t.Fatalf("POST state: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed event returned status %d, want 400", resp.StatusCode)
	}
	if _, exists := manager.lastEvent("media_player.living_room"); exists {
		t.Error("malformed event must not reach the manager")
	}
}

func TestStateEvent_Throttled(t *testing.T) {
	manager := newStubManager()

	config := &core.ServerConfig{
		Host:                 "127.0.0.1",
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         5 * time.Second,
		IngestLimitPerMinute: 2,
	}
	server := NewServer(config, manager, NewMetrics(), zap.NewNop())
	ts := httptest.NewServer(server.routes())
	defer ts.Close()
	defer server.gate.Stop()

	body := `{"attributes":{"media_artist":"Daft Punk","media_title":"One More Time"}}`
	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(
			ts.URL+"/sources/media_player.living_room/state",
			"application/json",
			strings.NewReader(body),
		)
		if err != nil {
			t.Fatalf("POST state: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	if statuses[0] != http.StatusAccepted || statuses[1] != http.StatusAccepted {
		t.Errorf("first two events should be accepted, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third event should be throttled, got %v", statuses)
	}
}
