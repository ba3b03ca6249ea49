package models

import (
	"fmt"
	"time"
)

// Notification channels.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelOps      = "ops"
)

// Recipient is an admin resolved from the directory, with the contact
// details and opt-in state each channel needs.
type Recipient struct {
	Name          string `bson:"name" json:"name"`
	Email         string `bson:"email,omitempty" json:"email,omitempty"`
	Phone         string `bson:"phone,omitempty" json:"phone,omitempty"`
	WhatsAppOptIn bool   `bson:"whatsapp_opt_in" json:"whatsapp_opt_in"`
	Role          string `bson:"role,omitempty" json:"role,omitempty"`
	Location      string `bson:"location,omitempty" json:"location,omitempty"`
}

// NotificationRecord is the audit entry written for every delivery attempt.
type NotificationRecord struct {
	ID         string    `bson:"id" json:"id"`
	Channel    string    `bson:"channel" json:"channel"`
	AlertType  AlertType `bson:"alert_type" json:"alert_type"`
	SensorID   string    `bson:"sensor_id,omitempty" json:"sensor_id,omitempty"`
	Recipient  string    `bson:"recipient" json:"recipient"`
	SentAt     time.Time `bson:"sent_at" json:"sent_at"`
	Success    bool      `bson:"success" json:"success"`
	ProviderID string    `bson:"provider_id,omitempty" json:"provider_id,omitempty"`
	Status     string    `bson:"status,omitempty" json:"status,omitempty"`
	Error      string    `bson:"error,omitempty" json:"error,omitempty"`
}

// ThrottleKey builds the cooldown key for one (channel, alert, recipient)
// combination.
func ThrottleKey(channel string, alertType AlertType, sensorID, recipient string) string {
	return fmt.Sprintf("throttle:%s:%s:%s:%s", channel, alertType, sensorID, recipient)
}

// DeliveryCounts summarizes one Notify call for observability.
type DeliveryCounts struct {
	EmailSent      int `json:"email_sent"`
	EmailFailed    int `json:"email_failed"`
	WhatsAppSent   int `json:"whatsapp_sent"`
	WhatsAppFailed int `json:"whatsapp_failed"`
	OpsSent        int `json:"ops_sent"`
	Throttled      int `json:"throttled"`
}
