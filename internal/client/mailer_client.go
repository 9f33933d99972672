package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/giftreel/api/internal/config"
)

// DeliverySender defines the interface toward the email-sending collaborator.
// Its failure is never conflated with a compositing failure.
type DeliverySender interface {
	Deliver(ctx context.Context, req *DeliveryRequest) error
	IsConfigured() bool
}

// DeliveryRequest is the handoff contract for "send an email for this job".
// The display fields are used only for message templating by the mailer.
type DeliveryRequest struct {
	JobID          string `json:"jobId"`
	VideoURL       string `json:"videoUrl"`
	RecipientEmail string `json:"recipientEmail"`
	RecipientName  string `json:"recipientName,omitempty"`
	EmailSubject   string `json:"emailSubject,omitempty"`
	EmailBody      string `json:"emailBody,omitempty"`
	ChildName      string `json:"childName,omitempty"`
	GiftName       string `json:"giftName,omitempty"`
	EventName      string `json:"eventName,omitempty"`
}

// MailerClient implements DeliverySender for the email microservice
type MailerClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewMailerClient creates a new delivery client
func NewMailerClient(cfg *config.MailerConfig) *MailerClient {
	return &MailerClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Deliver makes a single outbound call to the email service
func (c *MailerClient) Deliver(ctx context.Context, req *DeliveryRequest) error {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send delivery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mailer service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *MailerClient) IsConfigured() bool {
	return c.baseURL != ""
}
