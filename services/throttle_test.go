package services

import (
	"testing"
	"time"

	"aquamon/config"
	"aquamon/models"
)

func newTestThrottle(windowMinutes int) *NotificationThrottle {
	cfg := &config.Config{}
	cfg.Redis.Enabled = false
	cfg.Throttle.WindowMinutes = windowMinutes
	return NewNotificationThrottle(cfg)
}

func TestThrottleWindow(t *testing.T) {
	nt := newTestThrottle(15)
	defer nt.Stop()

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	nt.now = func() time.Time { return current }

	key := models.ThrottleKey(models.ChannelEmail, models.AlertTypePH, "sensor_1", "maria@example.com")

	if !nt.ShouldSend(key) {
		t.Fatal("first send should be allowed")
	}
	nt.MarkSent(key)

	if nt.ShouldSend(key) {
		t.Fatal("send inside the window should be suppressed")
	}

	current = current.Add(14 * time.Minute)
	if nt.ShouldSend(key) {
		t.Fatal("send at 14 minutes should still be suppressed")
	}

	current = current.Add(2 * time.Minute)
	if !nt.ShouldSend(key) {
		t.Fatal("send after the window should be allowed")
	}
}

func TestThrottleKeysAreIndependent(t *testing.T) {
	nt := newTestThrottle(15)
	defer nt.Stop()

	nt.MarkSent(models.ThrottleKey(models.ChannelEmail, models.AlertTypePH, "sensor_1", "maria@example.com"))

	others := []string{
		models.ThrottleKey(models.ChannelWhatsApp, models.AlertTypePH, "sensor_1", "maria@example.com"),
		models.ThrottleKey(models.ChannelEmail, models.AlertTypeEC, "sensor_1", "maria@example.com"),
		models.ThrottleKey(models.ChannelEmail, models.AlertTypePH, "sensor_2", "maria@example.com"),
		models.ThrottleKey(models.ChannelEmail, models.AlertTypePH, "sensor_1", "jose@example.com"),
	}
	for _, key := range others {
		if !nt.ShouldSend(key) {
			t.Fatalf("key %s should not share the cooldown", key)
		}
	}
}

func TestClearForAlert(t *testing.T) {
	nt := newTestThrottle(15)
	defer nt.Stop()

	cleared := []string{
		models.ThrottleKey(models.ChannelEmail, models.AlertTypePH, "sensor_1", "maria@example.com"),
		models.ThrottleKey(models.ChannelWhatsApp, models.AlertTypePH, "sensor_1", "+5215512345678"),
		models.ThrottleKey(models.ChannelOps, models.AlertTypePH, "sensor_1", "channel"),
	}
	kept := []string{
		models.ThrottleKey(models.ChannelEmail, models.AlertTypeEC, "sensor_1", "maria@example.com"),
		models.ThrottleKey(models.ChannelEmail, models.AlertTypePH, "sensor_2", "maria@example.com"),
	}
	for _, key := range append(append([]string{}, cleared...), kept...) {
		nt.MarkSent(key)
	}

	nt.ClearForAlert(models.AlertTypePH, "sensor_1")

	for _, key := range cleared {
		if !nt.ShouldSend(key) {
			t.Fatalf("key %s should have been cleared", key)
		}
	}
	for _, key := range kept {
		if nt.ShouldSend(key) {
			t.Fatalf("key %s should remain throttled", key)
		}
	}
}
