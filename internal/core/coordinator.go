package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"trackart/internal/store"
	"trackart/pkg/coverart"
	"trackart/pkg/textnorm"
)

// defaultCoverContentType is reported before any artwork has been resolved.
const defaultCoverContentType = "image/jpeg"

// Coordinator tracks the current track identity of one playback source and
// drives cover resolution exactly once per distinct identity.
type Coordinator struct {
	sourceID  string
	config    *Config
	providers []coverart.Provider
	resolver  CoverResolver
	cache     CoverCache
	observer  ResolutionObserver
	logger    *zap.Logger

	// trackMutex guards the current-track fields below.
	trackMutex sync.Mutex
	artist     string
	title      string // raw title as reported by the source
	album      string
	trackKey   string
	stopped    bool

	// refreshMutex serializes resolutions: at most one in flight per source.
	refreshMutex sync.Mutex

	// dataMutex guards the published snapshot.
	dataMutex sync.RWMutex
	data      CoverData
}

// NewCoordinator creates a coordinator for one playback source. observer may
// be nil.
func NewCoordinator(
	sourceID string,
	config *Config,
	providers []coverart.Provider,
	resolver CoverResolver,
	cache CoverCache,
	observer ResolutionObserver,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		sourceID:  sourceID,
		config:    config,
		providers: providers,
		resolver:  resolver,
		cache:     cache,
		observer:  observer,
		logger:    logger,
		data: CoverData{
			SourceID:    sourceID,
			ContentType: defaultCoverContentType,
			Status:      StatusIdle,
		},
	}
}

// SourceID returns the playback source this coordinator watches.
func (c *Coordinator) SourceID() string {
	return c.sourceID
}

// Start seeds the coordinator from the source's current state (when the host
// can supply one) and performs one refresh regardless, covering the case
// where a track is already playing when the coordinator attaches.
func (c *Coordinator) Start(ctx context.Context, getState StateGetter) error {
	if getState != nil {
		if attrs, ok := getState(c.sourceID); ok {
			c.setTrackFromAttrs(attrs)
		}
	}

	return c.Refresh(ctx)
}

// Stop detaches the coordinator from the notification stream. An in-flight
// resolution is allowed to complete; its result is published as usual.
func (c *Coordinator) Stop() {
	c.trackMutex.Lock()
	c.stopped = true
	c.trackMutex.Unlock()
}

// HandleStateChange processes one playback state notification. Notifications
// that do not change the track identity are no-ops, so heartbeat updates for
// an unchanged track never trigger network calls. A changed identity
// schedules an asynchronous refresh.
func (c *Coordinator) HandleStateChange(attrs map[string]string) {
	if !c.setTrackFromAttrs(attrs) {
		return
	}

	go func() {
		if err := c.Refresh(context.Background()); err != nil {
			c.logger.Warn("Cover refresh failed",
				zap.String("source", c.sourceID),
				zap.Error(err))
		}
	}()
}

// setTrackFromAttrs extracts artist/title/album, computes the new track
// identity and reports whether it changed.
func (c *Coordinator) setTrackFromAttrs(attrs map[string]string) bool {
	artist := strings.TrimSpace(attrs[AttrMediaArtist])
	title := strings.TrimSpace(attrs[AttrMediaTitle])
	album := strings.TrimSpace(attrs[AttrMediaAlbumName])

	newKey := BuildTrackKey(artist, title, album)

	c.trackMutex.Lock()
	defer c.trackMutex.Unlock()

	if c.stopped {
		return false
	}
	if newKey == c.trackKey {
		return false
	}

	c.artist = artist
	c.title = title
	c.album = album
	c.trackKey = newKey
	return true
}

// Refresh resolves artwork for the current track. Overlapping calls for the
// same source serialize on the refresh guard; the loser re-runs with the then
// current identity, so a superseded in-flight result is immediately
// overwritten rather than cancelled.
//
// A nil pipeline result stores an explicit not-found marker. An escalated
// provider error fails the refresh and leaves the previous snapshot in place.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMutex.Lock()
	defer c.refreshMutex.Unlock()

	c.trackMutex.Lock()
	trackKey := c.trackKey
	artist := c.artist
	title := c.title
	album := c.album
	c.trackMutex.Unlock()

	if trackKey == "" {
		c.publish(CoverData{
			SourceID:    c.sourceID,
			Artist:      artist,
			Title:       title,
			Album:       album,
			ContentType: defaultCoverContentType,
			Status:      StatusIdle,
		})
		return nil
	}

	if entry, ok := c.cache.Get(trackKey); ok {
		c.logger.Debug("Cover cache hit",
			zap.String("source", c.sourceID),
			zap.String("track", trackKey),
			zap.Bool("not_found", entry.NotFound))
		c.publish(dataFromEntry(c.sourceID, entry))
		return nil
	}

	cleanTitle := textnorm.StripVariantTags(title)
	query := coverart.TrackQuery{
		Artist: artist,
		Title:  cleanTitle,
		Album:  album,
		Width:  c.config.Resolver.ArtworkWidth,
		Height: c.config.Resolver.ArtworkHeight,
	}
	if cleanTitle != title {
		query.OriginalTitle = title
	}

	started := time.Now()
	cover, err := c.resolver.Resolve(ctx, query, c.providers)
	elapsed := time.Since(started)

	if err != nil {
		// Transport-level outage: keep the last known good cover.
		c.observeError(err)
		return fmt.Errorf("cover resolution for %q failed: %w", trackKey, err)
	}

	now := time.Now().UTC()

	if cover == nil {
		c.cache.PutNotFound(trackKey, artist, title, album)
		c.observe("", StatusNotFound, elapsed)
		c.publish(CoverData{
			SourceID:    c.sourceID,
			TrackKey:    trackKey,
			Artist:      artist,
			Title:       title,
			Album:       album,
			ContentType: defaultCoverContentType,
			LastUpdated: now,
			Status:      StatusNotFound,
		})
		return nil
	}

	c.cache.Put(&store.Entry{
		Identity:    trackKey,
		Artist:      artist,
		Title:       title,
		Album:       album,
		Provider:    string(cover.Provider),
		ArtworkURL:  cover.ArtworkURL,
		ContentType: cover.ContentType,
		Image:       cover.Image,
		ResolvedAt:  now,
	})
	c.observe(string(cover.Provider), StatusReady, elapsed)

	c.logger.Info("Cover resolved",
		zap.String("source", c.sourceID),
		zap.String("track", trackKey),
		zap.String("provider", string(cover.Provider)),
		zap.Int("bytes", len(cover.Image)))

	c.publish(CoverData{
		SourceID:    c.sourceID,
		TrackKey:    trackKey,
		Artist:      artist,
		Title:       title,
		Album:       album,
		Provider:    string(cover.Provider),
		ArtworkURL:  cover.ArtworkURL,
		ContentType: cover.ContentType,
		Image:       cover.Image,
		LastUpdated: now,
		Status:      StatusReady,
	})
	return nil
}

// Data returns the last published snapshot.
func (c *Coordinator) Data() CoverData {
	c.dataMutex.RLock()
	defer c.dataMutex.RUnlock()
	return c.data
}

func (c *Coordinator) publish(data CoverData) {
	c.dataMutex.Lock()
	c.data = data
	c.dataMutex.Unlock()
}

func (c *Coordinator) observe(provider string, status Status, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveResolution(provider, status, elapsed)
	}
}

func (c *Coordinator) observeError(err error) {
	if c.observer == nil {
		return
	}

	provider := ""
	var perr *coverart.ProviderError
	if errors.As(err, &perr) {
		provider = string(perr.Provider)
	}
	c.observer.ObserveResolutionError(provider)
}

func dataFromEntry(sourceID string, entry *store.Entry) CoverData {
	status := StatusReady
	contentType := entry.ContentType
	if entry.NotFound {
		status = StatusNotFound
		contentType = defaultCoverContentType
	}

	return CoverData{
		SourceID:    sourceID,
		TrackKey:    entry.Identity,
		Artist:      entry.Artist,
		Title:       entry.Title,
		Album:       entry.Album,
		Provider:    entry.Provider,
		ArtworkURL:  entry.ArtworkURL,
		ContentType: contentType,
		Image:       entry.Image,
		LastUpdated: entry.ResolvedAt,
		Status:      status,
	}
}
