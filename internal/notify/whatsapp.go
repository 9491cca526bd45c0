package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/leafplant/farmstock/internal/config"
)

// WhatsAppSender delivers messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	client        *resty.Client
	phoneNumberID string
}

func NewWhatsAppSender(cfg *config.WhatsAppConfig) *WhatsAppSender {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.SendTimeout).
		SetAuthToken(cfg.AccessToken)

	return &WhatsAppSender{
		client:        client,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

type textMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             messageBody `json:"text"`
}

type messageBody struct {
	Body string `json:"body"`
}

func (s *WhatsAppSender) Send(ctx context.Context, destination, text string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(textMessage{
			MessagingProduct: "whatsapp",
			To:               destination,
			Type:             "text",
			Text:             messageBody{Body: text},
		}).
		Post(fmt.Sprintf("/%s/messages", s.phoneNumberID))
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send whatsapp message: status %s", resp.Status())
	}
	return nil
}
