package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"workplacemapping/internal/delivery"
	"workplacemapping/internal/domain"
)

const RelayID = "relay"

// RelayChannel posts to a third-party form relay (Formspree style).
type RelayChannel struct {
	url    string
	client *http.Client
}

var _ delivery.NotificationChannel = (*RelayChannel)(nil)

func NewRelayChannel(url string, client *http.Client) *RelayChannel {
	if client == nil {
		client = NewHTTPClient()
	}
	return &RelayChannel{url: url, client: client}
}

func (c *RelayChannel) ID() string { return RelayID }

type relayPayload struct {
	inquiryPayload
	Subject string `json:"subject"`
	ReplyTo string `json:"_replyto"`
}

// relaySubject tags high priority inquiries so they stand out in the inbox.
func relaySubject(in domain.InquiryInput) string {
	subject := fmt.Sprintf("New %s from %s", in.InquiryType, in.FullName())
	if in.Priority() == domain.PriorityHigh {
		subject = "[" + domain.PriorityHigh + "] " + subject
	}
	return subject
}

func (c *RelayChannel) Attempt(ctx context.Context, in domain.InquiryInput) delivery.ChannelResult {
	body, err := json.Marshal(relayPayload{
		inquiryPayload: newInquiryPayload(in),
		Subject:        relaySubject(in),
		ReplyTo:        in.Email,
	})
	if err != nil {
		return delivery.ChannelResult{Detail: err.Error()}
	}

	status, respBody, err := post(ctx, c.client, c.url, "application/json", body, nil)
	if err != nil {
		return delivery.ChannelResult{Detail: err.Error()}
	}
	if !is2xx(status) {
		return delivery.ChannelResult{Detail: statusDetail(status, respBody)}
	}
	return delivery.ChannelResult{Success: true}
}
