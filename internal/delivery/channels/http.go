// Package channels holds the concrete inquiry notification providers.
package channels

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"workplacemapping/internal/domain"
)

const (
	maxResponseBody = 64 << 10
	maxDetailBody   = 200
)

// NewHTTPClient returns the client shared by all channels.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
	}
}

type inquiryPayload struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	Phone       string `json:"phone"`
	InquiryType string `json:"inquiryType"`
	Message     string `json:"message"`
	Priority    string `json:"priority"`
}

func newInquiryPayload(in domain.InquiryInput) inquiryPayload {
	return inquiryPayload{
		Name:        in.FullName(),
		Email:       in.Email,
		Company:     in.Company,
		Title:       in.Title,
		Phone:       in.Phone,
		InquiryType: in.InquiryType,
		Message:     in.Message,
		Priority:    in.Priority(),
	}
}

func post(ctx context.Context, client *http.Client, url, contentType string, body []byte, header http.Header) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, respBody, nil
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func statusDetail(status int, body []byte) string {
	if len(body) > maxDetailBody {
		body = body[:maxDetailBody]
	}
	return fmt.Sprintf("unexpected status code: %d body=%q", status, string(body))
}
