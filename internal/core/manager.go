package core

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"trackart/pkg/coverart"
)

// Manager owns one Coordinator per playback source and routes inbound state
// notifications to them. Independent sources resolve fully in parallel; the
// single-flight guard is per coordinator, never global.
type Manager struct {
	config    *Config
	providers []coverart.Provider
	resolver  CoverResolver
	cache     CoverCache
	observer  ResolutionObserver
	logger    *zap.Logger

	mutex        sync.RWMutex
	coordinators map[string]*Coordinator
	stopped      bool
}

// NewManager creates a manager. The configured provider identifiers are
// parsed once; unknown ones are skipped with a debug log and never reach
// dispatch. observer may be nil.
func NewManager(
	config *Config,
	resolver CoverResolver,
	cache CoverCache,
	observer ResolutionObserver,
	logger *zap.Logger,
) *Manager {
	providers, unknown := coverart.ParseProviders(config.Resolver.Providers)
	for _, id := range unknown {
		logger.Debug("Ignoring unknown provider in configuration", zap.String("provider", id))
	}

	return &Manager{
		config:       config,
		providers:    providers,
		resolver:     resolver,
		cache:        cache,
		observer:     observer,
		logger:       logger,
		coordinators: make(map[string]*Coordinator),
	}
}

// HandleStateChange routes one playback state notification to the source's
// coordinator, creating it on first contact.
func (m *Manager) HandleStateChange(sourceID string, attrs map[string]string) {
	coordinator := m.coordinator(sourceID)
	if coordinator == nil {
		return
	}
	coordinator.HandleStateChange(attrs)
}

// Data returns the latest snapshot for one source.
func (m *Manager) Data(sourceID string) (CoverData, bool) {
	m.mutex.RLock()
	coordinator, exists := m.coordinators[sourceID]
	m.mutex.RUnlock()

	if !exists {
		return CoverData{}, false
	}
	return coordinator.Data(), true
}

// Snapshot returns the latest snapshot of every known source, ordered by
// source id.
func (m *Manager) Snapshot() []CoverData {
	m.mutex.RLock()
	coordinators := make([]*Coordinator, 0, len(m.coordinators))
	for _, c := range m.coordinators {
		coordinators = append(coordinators, c)
	}
	m.mutex.RUnlock()

	sort.Slice(coordinators, func(i, j int) bool {
		return coordinators[i].SourceID() < coordinators[j].SourceID()
	})

	snapshots := make([]CoverData, 0, len(coordinators))
	for _, c := range coordinators {
		snapshots = append(snapshots, c.Data())
	}
	return snapshots
}

// ActiveSources returns the number of sources with a coordinator.
func (m *Manager) ActiveSources() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.coordinators)
}

// Stop detaches every coordinator. In-flight resolutions complete on their
// own; new notifications are ignored.
func (m *Manager) Stop() {
	m.mutex.Lock()
	m.stopped = true
	coordinators := make([]*Coordinator, 0, len(m.coordinators))
	for _, c := range m.coordinators {
		coordinators = append(coordinators, c)
	}
	m.mutex.Unlock()

	for _, c := range coordinators {
		c.Stop()
	}
}

func (m *Manager) coordinator(sourceID string) *Coordinator {
	m.mutex.RLock()
	coordinator, exists := m.coordinators[sourceID]
	stopped := m.stopped
	m.mutex.RUnlock()

	if exists {
		return coordinator
	}
	if stopped {
		return nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if coordinator, exists = m.coordinators[sourceID]; exists {
		return coordinator
	}
	if m.stopped {
		return nil
	}

	coordinator = NewCoordinator(
		sourceID,
		m.config,
		m.providers,
		m.resolver,
		m.cache,
		m.observer,
		m.logger.Named("coordinator"),
	)
	m.coordinators[sourceID] = coordinator

	m.logger.Info("Tracking new source", zap.String("source", sourceID))
	return coordinator
}
