package services

import (
	"context"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"aquamon/config"
)

// EmailService delivers alert notifications through SendGrid.
type EmailService struct {
	client  *sendgrid.Client
	from    *mail.Email
	enabled bool
}

func NewEmailService(cfg *config.Config) *EmailService {
	if cfg.Email.SendGridAPIKey == "" {
		log.Println("SendGrid API key not provided, email notifications disabled")
		return &EmailService{enabled: false}
	}

	return &EmailService{
		client:  sendgrid.NewSendClient(cfg.Email.SendGridAPIKey),
		from:    mail.NewEmail(cfg.Email.FromName, cfg.Email.FromAddress),
		enabled: true,
	}
}

func (es *EmailService) Enabled() bool {
	return es.enabled
}

// Send delivers one plain-text alert email.
func (es *EmailService) Send(ctx context.Context, address, subject, body string) error {
	if !es.enabled {
		return &ProviderError{Code: "disabled", Message: "email channel not configured", Retryable: false}
	}

	to := mail.NewEmail("", address)
	message := mail.NewSingleEmail(es.from, subject, to, body, body)

	response, err := es.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode >= 500 {
		return &ProviderError{
			Code:      fmt.Sprintf("%d", response.StatusCode),
			Message:   response.Body,
			Retryable: true,
		}
	}
	if response.StatusCode >= 400 {
		return &ProviderError{
			Code:      fmt.Sprintf("%d", response.StatusCode),
			Message:   response.Body,
			Retryable: false,
		}
	}

	return nil
}
