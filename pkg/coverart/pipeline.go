package coverart

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Pipeline orchestrates staged cover resolution: it tries an ordered list of
// title variants, and within each variant an ordered list of providers,
// returning the first successful result. Invocations are stateless.
type Pipeline struct {
	resolvers map[Provider]Resolver
	logger    *zap.Logger
}

// NewPipeline creates a pipeline with the standard provider clients, all
// sharing the given HTTP client. userAgent is passed to MusicBrainz.
func NewPipeline(client *http.Client, userAgent string, logger *zap.Logger) *Pipeline {
	return NewPipelineWithResolvers(map[Provider]Resolver{
		ProviderITunes:      NewITunesResolver(client),
		ProviderMusicBrainz: NewMusicBrainzResolver(client, userAgent),
	}, logger)
}

// NewPipelineWithResolvers creates a pipeline over explicit resolver
// implementations.
func NewPipelineWithResolvers(resolvers map[Provider]Resolver, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{resolvers: resolvers, logger: logger}
}

// Resolve runs the staged lookup. Providers not known to the pipeline are
// skipped; an empty provider list defaults to iTunes. A provider failure is
// logged and the next provider tried. The returned error is non-nil only when
// every attempt failed with a provider error and none produced a definitive
// no-match, which indicates the providers are unreachable rather than the
// track being unknown.
func (p *Pipeline) Resolve(ctx context.Context, query TrackQuery, providers []Provider) (*ResolvedCover, error) {
	providerList := p.filterProviders(providers)
	if len(providerList) == 0 {
		providerList = []Provider{ProviderITunes}
	}

	// Stage 1 tries the raw title so a remix-specific cover is found when one
	// exists; stage 2 falls back to the cleaned title for the original
	// release's artwork.
	titleStages := []string{query.Title}
	if query.OriginalTitle != "" && query.OriginalTitle != query.Title {
		titleStages = []string{query.OriginalTitle, query.Title}
	}

	var lastErr error
	sawNoMatch := false

	for _, stageTitle := range titleStages {
		stageQuery := query
		stageQuery.Title = stageTitle
		stageQuery.OriginalTitle = ""

		p.logger.Debug("Cover search stage", zap.String("title", stageTitle))

		for _, provider := range providerList {
			resolver, ok := p.resolvers[provider]
			if !ok {
				p.logger.Debug("No resolver registered, skipping", zap.String("provider", string(provider)))
				continue
			}

			cover, err := resolver.Resolve(ctx, stageQuery)
			if err != nil {
				lastErr = err
				p.logger.Debug("Provider failed",
					zap.String("provider", string(provider)),
					zap.String("title", stageTitle),
					zap.Error(err))
				continue
			}
			if cover != nil {
				return cover, nil
			}
			sawNoMatch = true
		}
	}

	if lastErr != nil && !sawNoMatch {
		return nil, lastErr
	}

	p.logger.Debug("All stages exhausted, no cover found",
		zap.String("artist", query.Artist),
		zap.String("title", query.Title))
	return nil, nil
}

// filterProviders drops unknown identifiers before dispatch.
func (p *Pipeline) filterProviders(providers []Provider) []Provider {
	var filtered []Provider
	for _, provider := range providers {
		switch provider {
		case ProviderITunes, ProviderMusicBrainz:
			filtered = append(filtered, provider)
		default:
			p.logger.Debug("Unknown provider, skipping", zap.String("provider", string(provider)))
		}
	}
	return filtered
}
