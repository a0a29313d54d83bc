package core

import (
	"context"
	"strings"
	"time"

	"trackart/internal/store"
	"trackart/pkg/coverart"
	"trackart/pkg/textnorm"
)

// Playback state attribute keys, as reported by media player sources.
const (
	AttrMediaArtist    = "media_artist"
	AttrMediaTitle     = "media_title"
	AttrMediaAlbumName = "media_album_name"
)

// Status is the tri-state outcome exposed to observers.
type Status string

const (
	// StatusIdle means no track is known and no resolution has been attempted.
	StatusIdle Status = "idle"
	// StatusReady means artwork was resolved for the current track.
	StatusReady Status = "ready"
	// StatusNotFound means resolution ran for the current track and found
	// nothing; observers should show their deterministic fallback image.
	StatusNotFound Status = "not_found"
)

// CoverData is the immutable snapshot a coordinator publishes after each
// refresh.
type CoverData struct {
	SourceID    string
	TrackKey    string
	Artist      string
	Title       string
	Album       string
	Provider    string
	ArtworkURL  string
	ContentType string
	Image       []byte
	LastUpdated time.Time
	Status      Status
}

// CoverResolver abstracts the staged resolution pipeline.
type CoverResolver interface {
	Resolve(ctx context.Context, query coverart.TrackQuery, providers []coverart.Provider) (*coverart.ResolvedCover, error)
}

// CoverCache abstracts the track-identity keyed cover store.
type CoverCache interface {
	Get(identity string) (*store.Entry, bool)
	Put(entry *store.Entry)
	PutNotFound(identity, artist, title, album string)
	Size() int
}

// StateGetter returns the current playback attributes for a source, if the
// host environment can supply them. Used to seed a coordinator at start so a
// track that is already playing gets artwork without waiting for the next
// state change.
type StateGetter func(sourceID string) (map[string]string, bool)

// ResolutionObserver receives refresh outcomes, e.g. for Prometheus metrics.
type ResolutionObserver interface {
	ObserveResolution(provider string, status Status, duration time.Duration)
	ObserveResolutionError(provider string)
}

// BuildTrackKey derives the track identity from raw metadata: each field is
// normalized and the three are joined deterministically. Two states that
// normalize to the same key are the same track, even if display case or
// whitespace differ. The key is empty when both artist and title are absent.
func BuildTrackKey(artist, title, album string) string {
	if strings.TrimSpace(artist) == "" && strings.TrimSpace(title) == "" {
		return ""
	}

	parts := []string{
		textnorm.Normalize(artist),
		textnorm.Normalize(title),
		textnorm.Normalize(album),
	}
	return strings.Join(parts, "|")
}
