package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"aquamon/models"
)

// AuditService writes append-only audit entries for admission decisions,
// dismissals, reconciler actions, and notification attempts. Sink failures
// are logged, never propagated: auditing must not break the operation it
// records.
type AuditService struct {
	repo AuditRepository
	now  func() time.Time
}

func NewAuditService(repo AuditRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

func (as *AuditService) Record(ctx context.Context, entry *models.AuditEntry) {
	if as == nil || as.repo == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = as.now().UTC()
	}
	if err := as.repo.InsertAuditEntry(ctx, entry); err != nil {
		log.Printf("Audit: failed to record %s: %v", entry.Action, err)
	}
}
