package core

import (
	"time"
)

type Config struct {
	Resolver ResolverConfig
	Cache    CacheConfig
	Server   ServerConfig
	Log      LogConfig
}

type ResolverConfig struct {
	Providers            []string
	ArtworkWidth         int
	ArtworkHeight        int
	RequestTimeout       time.Duration
	MusicBrainzUserAgent string
}

type CacheConfig struct {
	MaxEntries             int
	BloomFalsePositiveRate float64
	Path                   string // empty disables persistence
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// IngestLimitPerMinute caps state notifications accepted per source per
	// minute. Zero disables throttling.
	IngestLimitPerMinute int
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Resolver: ResolverConfig{
			Providers:            []string{"itunes"},
			ArtworkWidth:         600,
			ArtworkHeight:        600,
			RequestTimeout:       10 * time.Second,
			MusicBrainzUserAgent: "trackartd/1.0 (https://example.org/trackart)",
		},
		Cache: CacheConfig{
			MaxEntries:             1000,
			BloomFalsePositiveRate: 0.001,
		},
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 8080,
			ReadTimeout:          10 * time.Second,
			WriteTimeout:         10 * time.Second,
			IngestLimitPerMinute: 120,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
