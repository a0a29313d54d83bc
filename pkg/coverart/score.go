package coverart

import (
	"strings"

	"trackart/pkg/textnorm"
)

// Scoring weights for ranking iTunes search results against a query. The
// values are empirically tuned; treat them as knobs, not as a contract.
const (
	scoreTitleExact     = 16
	scoreTitleSubstring = 7
	scoreTitleMismatch  = -8

	scoreArtistExact     = 14
	scoreArtistSubstring = 5
	scoreArtistMismatch  = -6

	scoreAlbumExact     = 6
	scoreAlbumSubstring = 3

	// Single releases usually carry the track-specific artwork, compilations
	// usually don't.
	scoreAlbumSingle = 3
	scoreTrackKind   = 1

	// Minimum acceptable score. Artist-only queries are weaker evidence, so
	// the bar is lower but still non-trivial.
	minScoreWithTitle  = 10
	minScoreArtistOnly = 4
)

// candidateFields carries the provider-reported strings a result is ranked on.
type candidateFields struct {
	artist      string
	title       string
	album       string
	wrapperType string
}

// scoreCandidate ranks one search result against the query using weighted
// field similarity on annotation-stripped strings.
func scoreCandidate(query TrackQuery, fields candidateFields) int {
	qArtist := textnorm.StripAnnotations(query.Artist)
	qTitle := textnorm.StripAnnotations(query.Title)
	qAlbum := textnorm.StripAnnotations(query.Album)

	cArtist := textnorm.StripAnnotations(fields.artist)
	cTitle := textnorm.StripAnnotations(fields.title)
	cAlbum := textnorm.StripAnnotations(fields.album)

	score := 0

	if qTitle != "" && cTitle != "" {
		switch {
		case qTitle == cTitle:
			score += scoreTitleExact
		case strings.Contains(cTitle, qTitle) || strings.Contains(qTitle, cTitle):
			score += scoreTitleSubstring
		default:
			score += scoreTitleMismatch
		}
	}

	if qArtist != "" && cArtist != "" {
		switch {
		case qArtist == cArtist:
			score += scoreArtistExact
		case strings.Contains(cArtist, qArtist) || strings.Contains(qArtist, cArtist):
			score += scoreArtistSubstring
		default:
			score += scoreArtistMismatch
		}
	}

	if qAlbum != "" && cAlbum != "" {
		switch {
		case qAlbum == cAlbum:
			score += scoreAlbumExact
		case strings.Contains(cAlbum, qAlbum) || strings.Contains(qAlbum, cAlbum):
			score += scoreAlbumSubstring
		}
	}

	if containsWord(cAlbum, "single") {
		score += scoreAlbumSingle
	}

	if strings.EqualFold(strings.TrimSpace(fields.wrapperType), "track") {
		score += scoreTrackKind
	}

	return score
}

// minScore returns the acceptance threshold for the given query.
func minScore(query TrackQuery) int {
	if strings.TrimSpace(query.Title) != "" {
		return minScoreWithTitle
	}
	return minScoreArtistOnly
}

func containsWord(s, word string) bool {
	for _, w := range strings.Fields(s) {
		if w == word {
			return true
		}
	}
	return false
}
