package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"workplacemapping/internal/delivery"
	"workplacemapping/internal/domain"
)

const FunctionID = "function"

// FunctionChannel calls the site's own email function with a bearer key.
// Only a 2xx carrying {"success": true} counts as delivered.
type FunctionChannel struct {
	url    string
	key    string
	client *http.Client
}

var _ delivery.NotificationChannel = (*FunctionChannel)(nil)

func NewFunctionChannel(url, key string, client *http.Client) *FunctionChannel {
	if client == nil {
		client = NewHTTPClient()
	}
	return &FunctionChannel{url: url, key: key, client: client}
}

func (c *FunctionChannel) ID() string { return FunctionID }

type functionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *FunctionChannel) Attempt(ctx context.Context, in domain.InquiryInput) delivery.ChannelResult {
	body, err := json.Marshal(newInquiryPayload(in))
	if err != nil {
		return delivery.ChannelResult{Detail: err.Error()}
	}

	header := http.Header{}
	if c.key != "" {
		header.Set("Authorization", "Bearer "+c.key)
	}

	status, respBody, err := post(ctx, c.client, c.url, "application/json", body, header)
	if err != nil {
		return delivery.ChannelResult{Detail: err.Error()}
	}
	if !is2xx(status) {
		return delivery.ChannelResult{Detail: statusDetail(status, respBody)}
	}

	var fr functionResponse
	if err := json.Unmarshal(respBody, &fr); err != nil {
		return delivery.ChannelResult{Detail: fmt.Sprintf("failed to decode json: %v body=%q", err, string(respBody))}
	}
	if !fr.Success {
		detail := fr.Error
		if detail == "" {
			detail = fmt.Sprintf("function reported failure body=%q", string(respBody))
		}
		return delivery.ChannelResult{Detail: detail}
	}

	return delivery.ChannelResult{Success: true, Detail: fr.Message}
}
