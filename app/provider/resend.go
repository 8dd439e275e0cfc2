package provider

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
)

type ResendProvider struct {
	client *resend.Client
	source string
}

// NewResendProvider builds a provider backed by the Resend API.
func NewResendProvider(apiKey, source string) *ResendProvider {
	return &ResendProvider{
		client: resend.NewClient(apiKey),
		source: source,
	}
}

// Send delivers msg through the Resend emails endpoint.
func (p *ResendProvider) Send(ctx context.Context, msg preparer.Message) error {
	if msg.To == "" {
		return fmt.Errorf("recipient is required")
	}
	from := msg.From
	if from == "" {
		from = p.source
	}

	_, err := p.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Headers: msg.Headers,
	})
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}
