package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"aquamon/models"
)

// EmailChannel sends a templated message to one address.
type EmailChannel interface {
	Enabled() bool
	Send(ctx context.Context, address, subject, body string) error
}

// WhatsAppChannel sends a templated message to one E.164 phone number and
// returns the provider delivery receipt.
type WhatsAppChannel interface {
	Enabled() bool
	Send(ctx context.Context, phone, body string) (*WhatsAppReceipt, error)
}

// BroadcastChannel mirrors an alert to a shared operations channel.
type BroadcastChannel interface {
	Enabled() bool
	Broadcast(alert *models.Alert) error
}

// ChannelOptions carries the per-sensor channel enable flags into a
// Notify call. Zero value means both channels allowed.
type ChannelOptions struct {
	EmailDisabled    bool
	WhatsAppDisabled bool
}

// NotificationDispatcher fans an alert out to admin recipients over every
// eligible channel, under throttle control, recording each attempt.
// Per-recipient dispatch runs on its own goroutine so WhatsApp backoff
// sleeps never block the scheduler loops that trigger notifications.
type NotificationDispatcher struct {
	directory RecipientDirectory
	throttle  *NotificationThrottle
	email     EmailChannel
	whatsapp  WhatsAppChannel
	ops       BroadcastChannel
	records   NotificationRepository
	audit     *AuditService

	maxAttempts int
	backoffBase time.Duration

	now func() time.Time
}

func NewNotificationDispatcher(directory RecipientDirectory, throttle *NotificationThrottle, email EmailChannel, whatsapp WhatsAppChannel, ops BroadcastChannel, records NotificationRepository, audit *AuditService, maxAttempts int) *NotificationDispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &NotificationDispatcher{
		directory:   directory,
		throttle:    throttle,
		email:       email,
		whatsapp:    whatsapp,
		ops:         ops,
		records:     records,
		audit:       audit,
		maxAttempts: maxAttempts,
		backoffBase: time.Second,
		now:         time.Now,
	}
}

// Notify resolves admin recipients and attempts throttled delivery over
// every eligible channel. Delivery failures never propagate: the alert
// already exists, and the caller only sees the per-channel counts.
func (nd *NotificationDispatcher) Notify(ctx context.Context, alert *models.Alert, opts ChannelOptions) models.DeliveryCounts {
	var counts models.DeliveryCounts
	var mu sync.Mutex

	recipients := nd.resolveRecipients(ctx, alert)
	if len(recipients) == 0 {
		log.Printf("Dispatcher: no admin recipients resolved for alert %s", alert.ID)
	}

	var wg sync.WaitGroup
	for _, recipient := range recipients {
		wg.Add(1)
		go func(r models.Recipient) {
			defer wg.Done()
			c := nd.notifyRecipient(ctx, alert, r, opts)
			mu.Lock()
			counts.EmailSent += c.EmailSent
			counts.EmailFailed += c.EmailFailed
			counts.WhatsAppSent += c.WhatsAppSent
			counts.WhatsAppFailed += c.WhatsAppFailed
			counts.Throttled += c.Throttled
			mu.Unlock()
		}(recipient)
	}
	wg.Wait()

	// Critical alerts are mirrored once to the ops channel, throttled
	// under a synthetic recipient so the mirror obeys the same window.
	if alert.Level == models.LevelCritical && nd.ops != nil && nd.ops.Enabled() {
		key := models.ThrottleKey(models.ChannelOps, alert.Type, alert.SensorID, "channel")
		if nd.throttle.ShouldSend(key) {
			if err := nd.ops.Broadcast(alert); err != nil {
				log.Printf("Dispatcher: ops broadcast failed for alert %s: %v", alert.ID, err)
			} else {
				nd.throttle.MarkSent(key)
				counts.OpsSent++
			}
		} else {
			counts.Throttled++
		}
	}

	return counts
}

// resolveRecipients prefers the location-scoped admin group and falls back
// to the global admin list. Directory failures fail open onto the global
// list: losing a notification is worse than over-notifying.
func (nd *NotificationDispatcher) resolveRecipients(ctx context.Context, alert *models.Alert) []models.Recipient {
	if alert.Location != "" {
		scoped, err := nd.directory.AdminsForLocation(ctx, alert.Location)
		if err != nil {
			log.Printf("Dispatcher: scoped admin lookup failed for %q: %v", alert.Location, err)
		} else if len(scoped) > 0 {
			return scoped
		}
	}

	admins, err := nd.directory.Admins(ctx)
	if err != nil {
		log.Printf("Dispatcher: global admin lookup failed: %v", err)
		return nil
	}
	return admins
}

func (nd *NotificationDispatcher) notifyRecipient(ctx context.Context, alert *models.Alert, r models.Recipient, opts ChannelOptions) models.DeliveryCounts {
	var counts models.DeliveryCounts

	// Email is always attempted when an address is present.
	if !opts.EmailDisabled && r.Email != "" && nd.email != nil && nd.email.Enabled() {
		key := models.ThrottleKey(models.ChannelEmail, alert.Type, alert.SensorID, r.Email)
		if !nd.throttle.ShouldSend(key) {
			counts.Throttled++
		} else {
			subject, body := formatAlertEmail(alert)
			err := nd.email.Send(ctx, r.Email, subject, body)
			nd.recordAttempt(ctx, models.ChannelEmail, alert, r.Email, "", "", err)
			if err != nil {
				log.Printf("Dispatcher: email to %s failed: %v", r.Email, err)
				counts.EmailFailed++
			} else {
				nd.throttle.MarkSent(key)
				counts.EmailSent++
			}
		}
	}

	// WhatsApp requires a phone number and an explicit opt-in.
	if !opts.WhatsAppDisabled && r.Phone != "" && r.WhatsAppOptIn && nd.whatsapp != nil && nd.whatsapp.Enabled() {
		key := models.ThrottleKey(models.ChannelWhatsApp, alert.Type, alert.SensorID, r.Phone)
		if !nd.throttle.ShouldSend(key) {
			counts.Throttled++
		} else {
			receipt, err := nd.sendWhatsAppWithRetry(ctx, r.Phone, formatAlertWhatsApp(alert))
			var sid, status string
			if receipt != nil {
				sid, status = receipt.SID, receipt.Status
			}
			nd.recordAttempt(ctx, models.ChannelWhatsApp, alert, r.Phone, sid, status, err)
			if err != nil {
				log.Printf("Dispatcher: whatsapp to %s failed: %v", r.Phone, err)
				counts.WhatsAppFailed++
			} else {
				nd.throttle.MarkSent(key)
				counts.WhatsAppSent++
			}
		}
	}

	return counts
}

// sendWhatsAppWithRetry attempts delivery up to maxAttempts times with
// exponential backoff (1s, 2s, 4s) on retryable failures. Terminal
// provider errors abort immediately.
func (nd *NotificationDispatcher) sendWhatsAppWithRetry(ctx context.Context, phone, body string) (*WhatsAppReceipt, error) {
	var lastErr error
	backoff := nd.backoffBase

	for attempt := 1; attempt <= nd.maxAttempts; attempt++ {
		receipt, err := nd.whatsapp.Send(ctx, phone, body)
		if err == nil {
			return receipt, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == nd.maxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("whatsapp delivery exhausted after %d attempts: %w", nd.maxAttempts, lastErr)
}

// recordAttempt persists the delivery receipt for audit. Every attempt is
// recorded, success or exhausted failure.
func (nd *NotificationDispatcher) recordAttempt(ctx context.Context, channel string, alert *models.Alert, recipient, providerID, status string, sendErr error) {
	rec := &models.NotificationRecord{
		ID:         uuid.New().String(),
		Channel:    channel,
		AlertType:  alert.Type,
		SensorID:   alert.SensorID,
		Recipient:  recipient,
		SentAt:     nd.now().UTC(),
		Success:    sendErr == nil,
		ProviderID: providerID,
		Status:     status,
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
		var pe *ProviderError
		if errors.As(sendErr, &pe) {
			rec.Status = pe.Code
		}
	}

	if nd.records != nil {
		if err := nd.records.InsertNotificationRecord(ctx, rec); err != nil {
			log.Printf("Dispatcher: failed to record %s attempt: %v", channel, err)
		}
	}

	nd.audit.Record(ctx, &models.AuditEntry{
		Actor:    "dispatcher",
		Action:   "notification_attempt",
		AlertID:  alert.ID,
		SensorID: alert.SensorID,
		Detail: map[string]interface{}{
			"channel":   channel,
			"recipient": recipient,
			"success":   sendErr == nil,
		},
	})
}

func formatAlertEmail(alert *models.Alert) (subject, body string) {
	prefix := "[WARNING]"
	if alert.Level == models.LevelCritical {
		prefix = "[CRITICAL]"
	} else if alert.Level == models.LevelInfo {
		prefix = "[INFO]"
	}
	subject = fmt.Sprintf("%s %s", prefix, alert.Title)

	body = fmt.Sprintf(`%s

%s

ALERT DETAILS:
Type: %s
Level: %s
Sensor: %s
Location: %s
Created: %s
`,
		alert.Title,
		alert.Message,
		alert.Type,
		alert.Level,
		alert.SensorID,
		alert.Location,
		alert.CreatedAt.Format(time.RFC3339),
	)
	if alert.Value != nil {
		body += fmt.Sprintf("Value: %.2f\n", *alert.Value)
	}
	if alert.ThresholdInfo != "" {
		body += fmt.Sprintf("Thresholds: %s\n", alert.ThresholdInfo)
	}
	body += fmt.Sprintf("\n---\nAlert ID: %s", alert.ID)
	return subject, body
}

func formatAlertWhatsApp(alert *models.Alert) string {
	msg := fmt.Sprintf("*%s*\n%s", alert.Title, alert.Message)
	if alert.SensorID != "" {
		msg += fmt.Sprintf("\nSensor: %s", alert.SensorID)
	}
	if alert.Location != "" {
		msg += fmt.Sprintf("\nLocation: %s", alert.Location)
	}
	return msg
}
