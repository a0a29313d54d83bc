// Package coverart provides multi-provider cover artwork resolution for playing tracks.
package coverart

import (
	"context"
	"fmt"
)

// Provider identifies an external artwork source.
type Provider string

const (
	// ProviderITunes is the iTunes Search API.
	ProviderITunes Provider = "itunes"
	// ProviderMusicBrainz is MusicBrainz recording search plus the Cover Art Archive.
	ProviderMusicBrainz Provider = "musicbrainz"
)

// KnownProviders lists every supported provider identifier.
var KnownProviders = []Provider{ProviderITunes, ProviderMusicBrainz}

// ParseProviders converts raw configured identifiers to Providers, dropping
// unknown ones. Unknown identifiers are reported in the second return value so
// callers can debug-log them; they never fail configuration.
func ParseProviders(raw []string) ([]Provider, []string) {
	var providers []Provider
	var unknown []string

	for _, r := range raw {
		switch Provider(r) {
		case ProviderITunes, ProviderMusicBrainz:
			providers = append(providers, Provider(r))
		default:
			unknown = append(unknown, r)
		}
	}

	return providers, unknown
}

// TrackQuery describes one artwork lookup. Values are never mutated; title
// variants are produced by copying with an overridden Title.
type TrackQuery struct {
	Artist string // Artist name, empty when unknown.
	Title  string // Cleaned track title, empty when unknown.
	Album  string // Album name, empty when unknown.

	// OriginalTitle is the raw title before variant-tag stripping, set only
	// when it differs from Title.
	OriginalTitle string

	Width  int // Requested artwork width in pixels.
	Height int // Requested artwork height in pixels.
}

// ResolvedCover is the artwork returned by a successful provider lookup.
type ResolvedCover struct {
	Provider    Provider
	ArtworkURL  string
	ContentType string // MIME type, e.g. "image/jpeg".
	Image       []byte
}

// Resolver defines the interface a provider client implements.
// A nil cover with a nil error means the provider found no match, which is a
// valid outcome; a *ProviderError means the provider itself failed.
type Resolver interface {
	Resolve(ctx context.Context, query TrackQuery) (*ResolvedCover, error)
}

// ProviderError reports a failed provider call (timeout, non-2xx status on a
// required request, malformed payload). It is distinct from "no match" so the
// pipeline can skip a broken provider while still trusting a healthy one.
type ProviderError struct {
	Provider Provider
	Op       string // The failed operation, e.g. "search" or "artwork fetch".
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
