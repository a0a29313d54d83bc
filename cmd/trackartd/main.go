// Package main provides the trackartd daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"trackart/internal/core"
	httpserver "trackart/internal/http"
	"trackart/internal/store"
	"trackart/pkg/coverart"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trackartd",
	Short: "trackartd - cover artwork resolver for media players",
	Long: `trackartd watches playback state notifications from media player sources and
resolves cover artwork for the current track via the iTunes Search API and
MusicBrainz/Cover Art Archive, with per-track caching.`,
	RunE: runTrackart,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("providers", "itunes", "comma-separated provider order (itunes, musicbrainz)")
	rootCmd.PersistentFlags().Int("artwork-width", 600, "requested artwork width in pixels")
	rootCmd.PersistentFlags().Int("artwork-height", 600, "requested artwork height in pixels")
	rootCmd.PersistentFlags().Duration("request-timeout", 10*time.Second, "provider HTTP request timeout")
	rootCmd.PersistentFlags().String("musicbrainz-user-agent", "", "User-Agent sent to MusicBrainz")
	rootCmd.PersistentFlags().Int("cache-size", 1000, "maximum number of cached covers")
	rootCmd.PersistentFlags().String("cache-path", "", "SQLite file for the persistent cover cache (empty disables persistence)")
	rootCmd.PersistentFlags().String("server-host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().Int("ingest-limit", 120, "state notifications accepted per source per minute (0 disables)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("TRACKART")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	if providers := viper.GetString("providers"); providers != "" {
		cfg.Resolver.Providers = splitList(providers)
	}
	if width := viper.GetInt("artwork-width"); width > 0 {
		cfg.Resolver.ArtworkWidth = width
	}
	if height := viper.GetInt("artwork-height"); height > 0 {
		cfg.Resolver.ArtworkHeight = height
	}
	if timeout := viper.GetDuration("request-timeout"); timeout > 0 {
		cfg.Resolver.RequestTimeout = timeout
	}
	if userAgent := viper.GetString("musicbrainz-user-agent"); userAgent != "" {
		cfg.Resolver.MusicBrainzUserAgent = userAgent
	}

	if size := viper.GetInt("cache-size"); size > 0 {
		cfg.Cache.MaxEntries = size
	}
	cfg.Cache.Path = viper.GetString("cache-path")

	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("server-port"); port > 0 {
		cfg.Server.Port = port
	}
	cfg.Server.IngestLimitPerMinute = viper.GetInt("ingest-limit")

	if level := viper.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	return cfg
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runTrackart(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting trackartd",
		zap.Strings("providers", config.Resolver.Providers),
		zap.Int("artwork_width", config.Resolver.ArtworkWidth),
		zap.Int("artwork_height", config.Resolver.ArtworkHeight),
		zap.String("cache_path", config.Cache.Path))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cache, err := buildCache()
	if err != nil {
		return fmt.Errorf("failed to open cover cache: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("Failed to close cover cache", zap.Error(err))
		}
	}()

	client := &http.Client{Timeout: config.Resolver.RequestTimeout}
	pipeline := coverart.NewPipeline(client, config.Resolver.MusicBrainzUserAgent, logger.Named("coverart"))

	metrics := httpserver.NewMetrics()
	manager := core.NewManager(config, pipeline, cache, metrics, logger.Named("manager"))
	server := httpserver.NewServer(&config.Server, manager, metrics, logger.Named("http"))
	defer manager.Stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				metrics.SetCacheEntries(cache.Size())
				metrics.SetActiveSources(manager.ActiveSources())
			}
		}
	})

	logger.Info("trackartd started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("trackartd stopped with error", zap.Error(err))
		return err
	}

	logger.Info("trackartd stopped gracefully")
	return nil
}

func buildCache() (*store.CoverStore, error) {
	if config.Cache.Path == "" {
		return store.NewCoverStore(config.Cache.MaxEntries, config.Cache.BloomFalsePositiveRate), nil
	}
	return store.NewPersistentCoverStore(config.Cache.MaxEntries, config.Cache.BloomFalsePositiveRate, config.Cache.Path)
}

func validateConfig() error {
	providers, unknown := coverart.ParseProviders(config.Resolver.Providers)
	if len(providers) == 0 && len(config.Resolver.Providers) > 0 {
		return fmt.Errorf("no usable providers in %v", config.Resolver.Providers)
	}
	for _, id := range unknown {
		logger.Warn("Ignoring unknown provider", zap.String("provider", id))
	}

	for _, provider := range providers {
		if provider == coverart.ProviderMusicBrainz && config.Resolver.MusicBrainzUserAgent == "" {
			return fmt.Errorf("a User-Agent is required when the musicbrainz provider is enabled")
		}
	}

	if config.Resolver.ArtworkWidth <= 0 || config.Resolver.ArtworkHeight <= 0 {
		return fmt.Errorf("artwork dimensions must be positive")
	}

	return nil
}
