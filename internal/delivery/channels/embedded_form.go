package channels

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"workplacemapping/internal/delivery"
	"workplacemapping/internal/domain"
)

const (
	EmbeddedFormID = "embedded_form"

	EncodingURLEncoded = "urlencoded"
	EncodingMultipart  = "multipart"
)

// EmbeddedFormFields is the static field declaration the hosting platform's
// form capture matches submissions against. Multipart bodies keep this order;
// urlencoded bodies are sorted by key.
var EmbeddedFormFields = []string{"name", "email", "company", "title", "phone", "inquiryType", "message", "priority"}

// EmbeddedFormChannel submits the inquiry the way the site's hidden HTML form
// would.
type EmbeddedFormChannel struct {
	url      string
	formName string
	encoding string
	client   *http.Client
}

var _ delivery.NotificationChannel = (*EmbeddedFormChannel)(nil)

func NewEmbeddedFormChannel(url, formName, encoding string, client *http.Client) (*EmbeddedFormChannel, error) {
	if formName == "" {
		return nil, fmt.Errorf("embedded form name must be set")
	}
	switch encoding {
	case "":
		encoding = EncodingURLEncoded
	case EncodingURLEncoded, EncodingMultipart:
	default:
		return nil, fmt.Errorf("unsupported embedded form encoding %q", encoding)
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &EmbeddedFormChannel{url: url, formName: formName, encoding: encoding, client: client}, nil
}

func (c *EmbeddedFormChannel) ID() string { return EmbeddedFormID }

func formValues(in domain.InquiryInput) map[string]string {
	p := newInquiryPayload(in)
	return map[string]string{
		"name":        p.Name,
		"email":       p.Email,
		"company":     p.Company,
		"title":       p.Title,
		"phone":       p.Phone,
		"inquiryType": p.InquiryType,
		"message":     p.Message,
		"priority":    p.Priority,
	}
}

func (c *EmbeddedFormChannel) encode(in domain.InquiryInput) (string, []byte, error) {
	values := formValues(in)

	if c.encoding == EncodingMultipart {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("form-name", c.formName); err != nil {
			return "", nil, err
		}
		for _, field := range EmbeddedFormFields {
			if err := w.WriteField(field, values[field]); err != nil {
				return "", nil, err
			}
		}
		if err := w.Close(); err != nil {
			return "", nil, err
		}
		return w.FormDataContentType(), buf.Bytes(), nil
	}

	form := url.Values{}
	form.Set("form-name", c.formName)
	for _, field := range EmbeddedFormFields {
		form.Set(field, values[field])
	}
	return "application/x-www-form-urlencoded", []byte(form.Encode()), nil
}

func (c *EmbeddedFormChannel) Attempt(ctx context.Context, in domain.InquiryInput) delivery.ChannelResult {
	contentType, body, err := c.encode(in)
	if err != nil {
		return delivery.ChannelResult{Detail: err.Error()}
	}

	status, respBody, err := post(ctx, c.client, c.url, contentType, body, nil)
	if err != nil {
		return delivery.ChannelResult{Detail: err.Error()}
	}
	if !is2xx(status) {
		return delivery.ChannelResult{Detail: statusDetail(status, respBody)}
	}
	return delivery.ChannelResult{Success: true}
}
