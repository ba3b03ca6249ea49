package services

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// ConnectivityService decides whether a sensor is presumed online: a sensor
// is connected when any of its resolved aliases produced a reading inside
// the threshold window. All comparisons happen in UTC; zone-less stored
// timestamps were already normalized to UTC at the ingestion boundary.
type ConnectivityService struct {
	readings ReadingRepository
	configs  ConfigRepository

	// Alias resolution cache. Alias mappings rarely change, so entries
	// live until process restart or an explicit InvalidateAlias.
	aliasMu    sync.RWMutex
	aliasCache map[string][]string

	// Last-seen timestamps kept warm by the reading watcher so the common
	// path avoids a query per check.
	seenMu   sync.RWMutex
	lastSeen map[string]time.Time

	now func() time.Time
}

func NewConnectivityService(readings ReadingRepository, configs ConfigRepository) *ConnectivityService {
	return &ConnectivityService{
		readings:   readings,
		configs:    configs,
		aliasCache: make(map[string][]string),
		lastSeen:   make(map[string]time.Time),
		now:        time.Now,
	}
}

// IsConnected reports whether the sensor emitted a reading within the
// threshold window. Missing data means disconnected; a repository error is
// returned so the caller can apply its fail-open/fail-closed policy.
func (cs *ConnectivityService) IsConnected(ctx context.Context, sensorID string, thresholdMinutes int) (bool, error) {
	if sensorID == "" {
		return false, nil
	}

	threshold := time.Duration(thresholdMinutes) * time.Minute
	now := cs.now().UTC()

	aliases, err := cs.ResolveAliases(ctx, sensorID)
	if err != nil {
		return false, err
	}

	// Fast path: watcher-maintained last-seen timestamps.
	cs.seenMu.RLock()
	for _, alias := range aliases {
		if ts, ok := cs.lastSeen[alias]; ok && now.Sub(ts) <= threshold {
			cs.seenMu.RUnlock()
			return true, nil
		}
	}
	cs.seenMu.RUnlock()

	reading, err := cs.readings.LatestReading(ctx, aliases)
	if err != nil {
		return false, err
	}
	if reading == nil {
		return false, nil
	}

	ts := reading.Timestamp.UTC()
	cs.NoteReading(reading.SensorID, ts)

	return now.Sub(ts) <= threshold, nil
}

// ResolveAliases returns every identifier the sensor's data stream may be
// stored under: the raw id, the suffix of a composite id, and the
// separately configured reservoir id.
func (cs *ConnectivityService) ResolveAliases(ctx context.Context, sensorID string) ([]string, error) {
	cs.aliasMu.RLock()
	cached, ok := cs.aliasCache[sensorID]
	cs.aliasMu.RUnlock()
	if ok {
		return cached, nil
	}

	aliases := []string{sensorID}
	if idx := strings.LastIndex(sensorID, "_"); idx > 0 && idx < len(sensorID)-1 {
		aliases = append(aliases, sensorID[idx+1:])
	}

	cfg, err := cs.configs.GetConfig(ctx, sensorID)
	if err != nil {
		// Resolution still works off the id itself; log and keep going.
		log.Printf("Connectivity: config lookup failed for %s: %v", sensorID, err)
	} else if cfg != nil && cfg.ReservoirID != "" && cfg.ReservoirID != sensorID {
		aliases = append(aliases, cfg.ReservoirID)
	}

	cs.aliasMu.Lock()
	cs.aliasCache[sensorID] = aliases
	cs.aliasMu.Unlock()

	return aliases, nil
}

// InvalidateAlias drops the cached alias resolution for one sensor.
func (cs *ConnectivityService) InvalidateAlias(sensorID string) {
	cs.aliasMu.Lock()
	delete(cs.aliasCache, sensorID)
	cs.aliasMu.Unlock()
}

// NoteReading records the latest observed reading timestamp for a data
// stream identifier. Called by the reading watcher and by IsConnected.
func (cs *ConnectivityService) NoteReading(streamID string, ts time.Time) {
	ts = ts.UTC()
	cs.seenMu.Lock()
	if existing, ok := cs.lastSeen[streamID]; !ok || ts.After(existing) {
		cs.lastSeen[streamID] = ts
	}
	cs.seenMu.Unlock()
}
