package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"aquamon/models"
)

type countingDirectory struct {
	fakeDirectory
	calls int
}

func (c *countingDirectory) Admins(ctx context.Context) ([]models.Recipient, error) {
	c.calls++
	return c.fakeDirectory.Admins(ctx)
}

func TestDirectoryCachesLookups(t *testing.T) {
	source := &countingDirectory{fakeDirectory: fakeDirectory{
		global: []models.Recipient{{Name: "Maria", Email: "maria@example.com"}},
	}}
	ds := NewDirectoryService(source)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ds.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		admins, err := ds.Admins(context.Background())
		if err != nil {
			t.Fatalf("Admins: %v", err)
		}
		if len(admins) != 1 {
			t.Fatalf("expected 1 admin, got %d", len(admins))
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected a single source lookup within the TTL, got %d", source.calls)
	}

	current = current.Add(2 * time.Minute)
	if _, err := ds.Admins(context.Background()); err != nil {
		t.Fatalf("Admins after TTL: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expired entry should refetch, got %d calls", source.calls)
	}
}

func TestDirectoryServesStaleOnFailure(t *testing.T) {
	source := &countingDirectory{fakeDirectory: fakeDirectory{
		global: []models.Recipient{{Name: "Maria", Email: "maria@example.com"}},
	}}
	ds := NewDirectoryService(source)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ds.now = func() time.Time { return current }

	if _, err := ds.Admins(context.Background()); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	current = current.Add(2 * time.Minute)
	source.err = errors.New("connection reset")

	admins, err := ds.Admins(context.Background())
	if err != nil {
		t.Fatalf("stale entry should be served over the failure: %v", err)
	}
	if len(admins) != 1 {
		t.Fatalf("expected the stale admin list, got %d entries", len(admins))
	}
}

func TestDirectoryBlankLocation(t *testing.T) {
	ds := NewDirectoryService(&fakeDirectory{})

	admins, err := ds.AdminsForLocation(context.Background(), "   ")
	if err != nil {
		t.Fatalf("AdminsForLocation: %v", err)
	}
	if admins != nil {
		t.Fatalf("blank location resolves to nothing, got %v", admins)
	}
}
