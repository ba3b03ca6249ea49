package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aquamon/config"
)

// WhatsAppReceipt is the structured delivery result the provider returns.
type WhatsAppReceipt struct {
	SID    string
	Status string
}

// Provider error codes known to be transient. 63016 is the template
// rate-limit code; retrying after backoff usually succeeds.
var transientWhatsAppCodes = map[int]bool{
	20429: true,
	63016: true,
}

// WhatsAppService delivers messages through a Twilio-compatible WhatsApp
// REST API. Failures are classified so the dispatcher can retry transient
// ones and abort on terminal ones.
type WhatsAppService struct {
	httpClient *http.Client
	accountSID string
	authToken  string
	from       string
	baseURL    string
	enabled    bool
}

func NewWhatsAppService(cfg *config.Config) *WhatsAppService {
	if cfg.WhatsApp.AccountSID == "" || cfg.WhatsApp.AuthToken == "" || cfg.WhatsApp.FromNumber == "" {
		log.Println("WhatsApp credentials not provided, WhatsApp notifications disabled")
		return &WhatsAppService{enabled: false}
	}

	return &WhatsAppService{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		accountSID: cfg.WhatsApp.AccountSID,
		authToken:  cfg.WhatsApp.AuthToken,
		from:       cfg.WhatsApp.FromNumber,
		baseURL:    strings.TrimRight(cfg.WhatsApp.APIBaseURL, "/"),
		enabled:    true,
	}
}

func (ws *WhatsAppService) Enabled() bool {
	return ws.enabled
}

// Send delivers one message to an E.164 phone number.
func (ws *WhatsAppService) Send(ctx context.Context, phone, body string) (*WhatsAppReceipt, error) {
	if !ws.enabled {
		return nil, &ProviderError{Code: "disabled", Message: "whatsapp channel not configured", Retryable: false}
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", ws.baseURL, ws.accountSID)

	form := url.Values{}
	form.Set("From", "whatsapp:"+ws.from)
	form.Set("To", "whatsapp:"+phone)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(ws.accountSID, ws.authToken)

	resp, err := ws.httpClient.Do(req)
	if err != nil {
		// Network-level failures (timeouts included) are retryable.
		return nil, fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		SID       string `json:"sid"`
		Status    string `json:"status"`
		ErrorCode int    `json:"code"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, &ProviderError{
			Code:      fmt.Sprintf("%d", resp.StatusCode),
			Message:   payload.Message,
			Retryable: true,
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &ProviderError{
			Code:      fmt.Sprintf("%d", payload.ErrorCode),
			Message:   payload.Message,
			Retryable: transientWhatsAppCodes[payload.ErrorCode],
		}
	}

	return &WhatsAppReceipt{SID: payload.SID, Status: payload.Status}, nil
}
