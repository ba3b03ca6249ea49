package services

import (
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"aquamon/models"
)

// DiscordBotService mirrors critical alerts to an operations channel. It
// is a broadcast supplement to the per-recipient email/WhatsApp channels
// and is disabled unless a bot token is configured.
type DiscordBotService struct {
	session   *discordgo.Session
	channelID string
	enabled   bool
}

func NewDiscordBotService(token string, channelID string) (*DiscordBotService, error) {
	if token == "" {
		log.Println("Discord bot token not provided, ops notifications disabled")
		return &DiscordBotService{enabled: false}, nil
	}

	if channelID == "" {
		log.Println("Discord channel ID not provided, ops notifications disabled")
		return &DiscordBotService{enabled: false}, nil
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord connection: %w", err)
	}

	log.Printf("Discord bot connected, ops channel: %s", channelID)

	return &DiscordBotService{
		session:   session,
		channelID: channelID,
		enabled:   true,
	}, nil
}

func (d *DiscordBotService) Enabled() bool {
	return d != nil && d.enabled
}

func (d *DiscordBotService) Close() {
	if d.enabled && d.session != nil {
		log.Println("Closing Discord bot connection...")
		d.session.Close()
	}
}

// Broadcast posts one alert embed to the ops channel.
func (d *DiscordBotService) Broadcast(alert *models.Alert) error {
	if !d.Enabled() {
		return fmt.Errorf("Discord bot not enabled")
	}

	embed := d.createAlertEmbed(alert)

	if _, err := d.session.ChannelMessageSendEmbed(d.channelID, embed); err != nil {
		return fmt.Errorf("failed to send Discord message: %w", err)
	}

	log.Printf("Alert mirrored to Discord ops channel: %s", alert.Title)
	return nil
}

func (d *DiscordBotService) createAlertEmbed(alert *models.Alert) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Type", Value: string(alert.Type), Inline: true},
		{Name: "Level", Value: string(alert.Level), Inline: true},
	}
	if alert.SensorID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Sensor", Value: alert.SensorID, Inline: true,
		})
	}
	if alert.Location != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Location", Value: alert.Location, Inline: true,
		})
	}
	if alert.Value != nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Value", Value: fmt.Sprintf("%.2f", *alert.Value), Inline: true,
		})
	}
	if alert.ThresholdInfo != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Thresholds", Value: alert.ThresholdInfo, Inline: false,
		})
	}

	return &discordgo.MessageEmbed{
		Title:       alert.Title,
		Description: alert.Message,
		Color:       d.colorForLevel(alert.Level),
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Alert ID: %s", alert.ID),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (d *DiscordBotService) colorForLevel(level models.AlertLevel) int {
	switch level {
	case models.LevelCritical:
		return 15158332 // Red
	case models.LevelWarning:
		return 15844367 // Gold
	default:
		return 3447003 // Blue
	}
}
