package coverart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"trackart/pkg/textnorm"
)

const (
	// iTunesSearchURL is the iTunes Search API endpoint.
	iTunesSearchURL = "https://itunes.apple.com/search"
	// iTunesSearchLimit is the per-request result cap.
	iTunesSearchLimit = 15
	// minArtworkEdge is the smallest artwork edge ever requested from Apple.
	minArtworkEdge = 100
	// defaultContentType is assumed when the artwork response omits one.
	defaultContentType = "image/jpeg"
)

// Apple artwork thumbnail URLs embed their resolution, e.g. ".../100x100bb.jpg".
var artworkSizeRegex = regexp.MustCompile(`(?i)/(\d{2,4})x(\d{2,4})bb\.(jpg|png)$`)

type iTunesSearchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []iTunesResult `json:"results"`
}

type iTunesResult struct {
	WrapperType    string `json:"wrapperType"`
	TrackID        int64  `json:"trackId"`
	CollectionID   int64  `json:"collectionId"`
	ArtistName     string `json:"artistName"`
	TrackName      string `json:"trackName"`
	CollectionName string `json:"collectionName"`
	ArtworkURL100  string `json:"artworkUrl100"`
	ArtworkURL60   string `json:"artworkUrl60"`
	ArtworkURL30   string `json:"artworkUrl30"`
}

// ITunesResolver resolves cover artwork via the iTunes Search API.
type ITunesResolver struct {
	client    *http.Client
	searchURL string
}

// NewITunesResolver creates an iTunes resolver using the shared HTTP client.
func NewITunesResolver(client *http.Client) *ITunesResolver {
	return &ITunesResolver{client: client, searchURL: iTunesSearchURL}
}

// Resolve searches iTunes with up to three term variants, scores the merged
// results and fetches the best match's artwork. A failed HTTP call on either
// the search or the artwork fetch returns a *ProviderError; a result below
// the acceptance threshold or an empty image body is a plain no-match.
func (r *ITunesResolver) Resolve(ctx context.Context, query TrackQuery) (*ResolvedCover, error) {
	if query.Artist == "" && query.Title == "" {
		return nil, nil
	}

	results, err := r.searchMerged(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	best, bestScore := pickBest(query, results)
	if best == nil || bestScore < minScore(query) {
		return nil, nil
	}

	artwork := best.ArtworkURL100
	if artwork == "" {
		artwork = best.ArtworkURL60
	}
	if artwork == "" {
		artwork = best.ArtworkURL30
	}
	if artwork == "" {
		return nil, nil
	}

	edge := query.Width
	if query.Height > edge {
		edge = query.Height
	}
	if edge < minArtworkEdge {
		edge = minArtworkEdge
	}
	artworkURL := upscaleArtworkURL(artwork, edge)

	image, contentType, err := r.fetchImage(ctx, artworkURL)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderITunes, Op: "artwork fetch", Err: err}
	}
	if len(image) == 0 {
		return nil, nil
	}

	return &ResolvedCover{
		Provider:    ProviderITunes,
		ArtworkURL:  artworkURL,
		ContentType: contentType,
		Image:       image,
	}, nil
}

// searchMerged issues one search per term variant and merges the results,
// deduplicating by Apple's track (or collection) id.
func (r *ITunesResolver) searchMerged(ctx context.Context, query TrackQuery) ([]iTunesResult, error) {
	var merged []iTunesResult
	seen := make(map[string]struct{})

	for _, term := range searchTerms(query) {
		results, err := r.search(ctx, term)
		if err != nil {
			return nil, &ProviderError{Provider: ProviderITunes, Op: "search", Err: err}
		}

		for _, item := range results {
			key := dedupKey(item)
			if key != "" {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			merged = append(merged, item)
		}
	}

	return merged, nil
}

// searchTerms builds the ordered term variants for a query: "artist title",
// "title artist" and "artist title single", each annotation-stripped.
// Duplicates (e.g. for artist-only queries) are removed, order preserved.
func searchTerms(query TrackQuery) []string {
	artist := textnorm.StripAnnotations(query.Artist)
	title := textnorm.StripAnnotations(query.Title)

	variants := []string{
		joinTerm(artist, title),
		joinTerm(title, artist),
		joinTerm(artist, title, "single"),
	}

	var terms []string
	seen := make(map[string]struct{})
	for _, v := range variants {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		terms = append(terms, v)
	}

	return terms
}

func joinTerm(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

func dedupKey(item iTunesResult) string {
	if item.TrackID != 0 {
		return "t" + strconv.FormatInt(item.TrackID, 10)
	}
	if item.CollectionID != 0 {
		return "c" + strconv.FormatInt(item.CollectionID, 10)
	}
	return ""
}

// pickBest scans all candidates and keeps the maximum-scoring one. The scan
// keeps strictly greater scores, so the first maximum wins on ties.
func pickBest(query TrackQuery, results []iTunesResult) (*iTunesResult, int) {
	var best *iTunesResult
	bestScore := -1

	for i := range results {
		item := &results[i]
		score := scoreCandidate(query, candidateFields{
			artist:      item.ArtistName,
			title:       item.TrackName,
			album:       item.CollectionName,
			wrapperType: item.WrapperType,
		})
		if score > bestScore {
			bestScore = score
			best = item
		}
	}

	return best, bestScore
}

func (r *ITunesResolver) search(ctx context.Context, term string) ([]iTunesResult, error) {
	params := url.Values{}
	params.Set("term", term)
	params.Set("entity", "song")
	params.Set("media", "music")
	params.Set("limit", strconv.Itoa(iTunesSearchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.searchURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("iTunes search returned status %d", resp.StatusCode)
	}

	var searchResp iTunesSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode iTunes search response: %w", err)
	}

	return searchResp.Results, nil
}

func (r *ITunesResolver) fetchImage(ctx context.Context, artworkURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artworkURL, http.NoBody)
	if err != nil {
		return nil, "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("artwork fetch returned status %d", resp.StatusCode)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	return image, contentType, nil
}

// upscaleArtworkURL rewrites the resolution embedded in an Apple artwork
// thumbnail URL to request a square image of the given edge length. URLs
// without the expected suffix are returned unchanged.
func upscaleArtworkURL(artworkURL string, edge int) string {
	m := artworkSizeRegex.FindStringSubmatch(artworkURL)
	if m == nil {
		return artworkURL
	}
	ext := m[3]
	return artworkSizeRegex.ReplaceAllString(artworkURL, fmt.Sprintf("/%dx%dbb.%s", edge, edge, ext))
}
