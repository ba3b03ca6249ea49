package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"aquamon/models"
)

// DirectoryService resolves admin recipients for notification fan-out,
// caching lookups briefly so a burst of alerts does not hammer the user
// collection. Location matching is case-insensitive.
type DirectoryService struct {
	source RecipientDirectory
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]directoryEntry

	now func() time.Time
}

type directoryEntry struct {
	recipients []models.Recipient
	fetchedAt  time.Time
}

func NewDirectoryService(source RecipientDirectory) *DirectoryService {
	return &DirectoryService{
		source: source,
		ttl:    time.Minute,
		cache:  make(map[string]directoryEntry),
		now:    time.Now,
	}
}

// Admins returns the global admin list.
func (ds *DirectoryService) Admins(ctx context.Context) ([]models.Recipient, error) {
	return ds.lookup(ctx, "*", func(ctx context.Context) ([]models.Recipient, error) {
		return ds.source.Admins(ctx)
	})
}

// AdminsForLocation returns the admins scoped to one location. An empty
// result is cached too: "no scoped admins" is a real answer and the
// dispatcher falls back to the global list.
func (ds *DirectoryService) AdminsForLocation(ctx context.Context, location string) ([]models.Recipient, error) {
	key := strings.ToLower(strings.TrimSpace(location))
	if key == "" {
		return nil, nil
	}
	return ds.lookup(ctx, key, func(ctx context.Context) ([]models.Recipient, error) {
		return ds.source.AdminsForLocation(ctx, location)
	})
}

func (ds *DirectoryService) lookup(ctx context.Context, key string, fetch func(context.Context) ([]models.Recipient, error)) ([]models.Recipient, error) {
	ds.mu.Lock()
	entry, ok := ds.cache[key]
	ds.mu.Unlock()
	if ok && ds.now().Sub(entry.fetchedAt) < ds.ttl {
		return entry.recipients, nil
	}

	recipients, err := fetch(ctx)
	if err != nil {
		// Serve a stale entry over failing the whole notification.
		if ok {
			return entry.recipients, nil
		}
		return nil, err
	}

	ds.mu.Lock()
	ds.cache[key] = directoryEntry{recipients: recipients, fetchedAt: ds.now()}
	ds.mu.Unlock()
	return recipients, nil
}
