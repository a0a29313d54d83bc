package coverart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// musicBrainzSearchURL is the MusicBrainz recording search endpoint.
	musicBrainzSearchURL = "https://musicbrainz.org/ws/2/recording"
	// coverArtArchiveURL is the release-scoped front cover endpoint.
	coverArtArchiveURL = "https://coverartarchive.org/release/%s/front-500"
	// musicBrainzSearchLimit caps the number of recordings requested.
	musicBrainzSearchLimit = 5
)

type musicBrainzSearchResponse struct {
	Recordings []musicBrainzRecording `json:"recordings"`
}

type musicBrainzRecording struct {
	ID       string               `json:"id"`
	Title    string               `json:"title"`
	Releases []musicBrainzRelease `json:"releases"`
}

type musicBrainzRelease struct {
	ID string `json:"id"`
}

// MusicBrainzResolver resolves cover artwork via MusicBrainz recording search
// and the Cover Art Archive.
type MusicBrainzResolver struct {
	client      *http.Client
	userAgent   string
	limiter     *rate.Limiter
	searchURL   string
	coverURLFmt string
}

// NewMusicBrainzResolver creates a MusicBrainz resolver using the shared HTTP
// client. userAgent must identify the application; MusicBrainz rejects
// anonymous clients. Requests are rate limited to 1/s per MusicBrainz
// guidelines.
func NewMusicBrainzResolver(client *http.Client, userAgent string) *MusicBrainzResolver {
	return &MusicBrainzResolver{
		client:      client,
		userAgent:   userAgent,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
		searchURL:   musicBrainzSearchURL,
		coverURLFmt: coverArtArchiveURL,
	}
}

// Resolve searches MusicBrainz for the query's recording, takes the first
// recording that has an associated release and fetches that release's front
// cover from the Cover Art Archive.
//
// Error handling is deliberately asymmetric: a failed search call escalates
// as *ProviderError (it indicates systemic trouble), while a failed or empty
// artwork fetch is a plain no-match (many releases simply have no cover in
// the archive). Do not unify the two paths.
func (r *MusicBrainzResolver) Resolve(ctx context.Context, query TrackQuery) (*ResolvedCover, error) {
	if query.Artist == "" && query.Title == "" {
		return nil, nil
	}

	recordings, err := r.search(ctx, query)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderMusicBrainz, Op: "search", Err: err}
	}

	releaseID := firstReleaseID(recordings)
	if releaseID == "" {
		return nil, nil
	}

	return r.fetchFrontCover(ctx, releaseID)
}

func (r *MusicBrainzResolver) search(ctx context.Context, query TrackQuery) ([]musicBrainzRecording, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", luceneQuery(query))
	params.Set("fmt", "json")
	params.Set("limit", strconv.Itoa(musicBrainzSearchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.searchURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MusicBrainz search returned status %d", resp.StatusCode)
	}

	var searchResp musicBrainzSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode MusicBrainz search response: %w", err)
	}

	return searchResp.Recordings, nil
}

// luceneQuery builds the structured MusicBrainz query, omitting either clause
// when the field is absent.
func luceneQuery(query TrackQuery) string {
	var fragments []string
	if query.Title != "" {
		fragments = append(fragments, fmt.Sprintf("recording:%q", query.Title))
	}
	if query.Artist != "" {
		fragments = append(fragments, fmt.Sprintf("artist:%q", query.Artist))
	}

	q := ""
	for i, f := range fragments {
		if i > 0 {
			q += " AND "
		}
		q += f
	}
	return q
}

// firstReleaseID walks recordings in order and returns the first release id
// found, skipping recordings with an empty release list.
func firstReleaseID(recordings []musicBrainzRecording) string {
	for _, rec := range recordings {
		for _, rel := range rec.Releases {
			if rel.ID != "" {
				return rel.ID
			}
		}
	}
	return ""
}

func (r *MusicBrainzResolver) fetchFrontCover(ctx context.Context, releaseID string) (*ResolvedCover, error) {
	artworkURL := fmt.Sprintf(r.coverURLFmt, releaseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artworkURL, http.NoBody)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		// Missing or unreachable cover art for a release is routine.
		return nil, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil || len(image) == 0 {
		return nil, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	return &ResolvedCover{
		Provider:    ProviderMusicBrainz,
		ArtworkURL:  artworkURL,
		ContentType: contentType,
		Image:       image,
	}, nil
}
