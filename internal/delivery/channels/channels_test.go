package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"workplacemapping/internal/config"
	"workplacemapping/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInquiry() domain.InquiryInput {
	return domain.InquiryInput{
		InquiryType: "Communication Diagnostic ($10,000)",
		FirstName:   "Sarah",
		LastName:    "Lee",
		Title:       "Manager",
		Company:     "Acme",
		Phone:       "555-0000",
		Email:       "sarah@acme.com",
		Message:     "We keep losing decisions between teams.",
	}
}

type captured struct {
	method      string
	contentType string
	auth        string
	body        []byte
}

func captureServer(t *testing.T, status int, respBody string) (*httptest.Server, *captured) {
	t.Helper()

	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.contentType = r.Header.Get("Content-Type")
		got.auth = r.Header.Get("Authorization")
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestFunctionChannel_Success(t *testing.T) {
	t.Parallel()

	srv, got := captureServer(t, http.StatusOK, `{"success":true,"message":"Inquiry sent successfully"}`)
	ch := NewFunctionChannel(srv.URL, "anon-key", srv.Client())

	res := ch.Attempt(context.Background(), sampleInquiry())

	require.True(t, res.Success, res.Detail)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "Bearer anon-key", got.auth)

	var body map[string]string
	require.NoError(t, json.Unmarshal(got.body, &body))
	assert.Equal(t, "Sarah Lee", body["name"])
	assert.Equal(t, "sarah@acme.com", body["email"])
	assert.Equal(t, "Communication Diagnostic ($10,000)", body["inquiryType"])
	assert.Equal(t, "HIGH", body["priority"])
	assert.Len(t, body, 8)
}

func TestFunctionChannel_RequiresSuccessFlag(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		body   string
	}{
		"success false": {http.StatusOK, `{"success":false,"error":"SMTP connection refused"}`},
		"missing flag":  {http.StatusOK, `{"message":"ok"}`},
		"not json":      {http.StatusOK, `<html>ok</html>`},
		"server error":  {http.StatusInternalServerError, `{"success":true}`},
		"unauthorized":  {http.StatusUnauthorized, `{"msg":"Invalid JWT"}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv, _ := captureServer(t, tc.status, tc.body)
			res := NewFunctionChannel(srv.URL, "k", srv.Client()).Attempt(context.Background(), sampleInquiry())

			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Detail)
		})
	}
}

func TestFunctionChannel_ReportsFunctionError(t *testing.T) {
	t.Parallel()

	srv, _ := captureServer(t, http.StatusOK, `{"success":false,"error":"SMTP connection refused"}`)
	res := NewFunctionChannel(srv.URL, "k", srv.Client()).Attempt(context.Background(), sampleInquiry())

	assert.Equal(t, "SMTP connection refused", res.Detail)
}

func TestFunctionChannel_UnreachableIsFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewFunctionChannel(url, "k", nil).Attempt(context.Background(), sampleInquiry())

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Detail)
}

func TestFunctionChannel_HonoursContextDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := NewFunctionChannel(srv.URL, "k", srv.Client()).Attempt(ctx, sampleInquiry())

	assert.False(t, res.Success)
	assert.Contains(t, res.Detail, "deadline exceeded")
}

func TestRelayChannel_AddsSubjectAndReplyTo(t *testing.T) {
	t.Parallel()

	srv, got := captureServer(t, http.StatusOK, `{"ok":true}`)
	res := NewRelayChannel(srv.URL, srv.Client()).Attempt(context.Background(), sampleInquiry())

	require.True(t, res.Success, res.Detail)
	assert.Empty(t, got.auth)

	var body map[string]string
	require.NoError(t, json.Unmarshal(got.body, &body))
	assert.Equal(t, "[HIGH] New Communication Diagnostic ($10,000) from Sarah Lee", body["subject"])
	assert.Equal(t, "HIGH", body["priority"])
	assert.Equal(t, "sarah@acme.com", body["_replyto"])
	assert.Equal(t, "Acme", body["company"])
	assert.Len(t, body, 10)
}

func TestRelayChannel_MediumPriorityHasPlainSubject(t *testing.T) {
	t.Parallel()

	srv, got := captureServer(t, http.StatusOK, `{"ok":true}`)
	in := sampleInquiry()
	in.InquiryType = "Schedule a Consultation"
	res := NewRelayChannel(srv.URL, srv.Client()).Attempt(context.Background(), in)

	require.True(t, res.Success, res.Detail)
	var body map[string]string
	require.NoError(t, json.Unmarshal(got.body, &body))
	assert.Equal(t, "New Schedule a Consultation from Sarah Lee", body["subject"])
	assert.Equal(t, "MEDIUM", body["priority"])
}

func TestRelayChannel_Non2xxIsFailure(t *testing.T) {
	t.Parallel()

	srv, _ := captureServer(t, http.StatusUnprocessableEntity, `{"error":"form not found"}`)
	res := NewRelayChannel(srv.URL, srv.Client()).Attempt(context.Background(), sampleInquiry())

	assert.False(t, res.Success)
	assert.Contains(t, res.Detail, "422")
	assert.Contains(t, res.Detail, "form not found")
}

func TestEmbeddedFormChannel_URLEncoded(t *testing.T) {
	t.Parallel()

	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error: %v", err)
		}
		form = r.PostForm
	}))
	t.Cleanup(srv.Close)

	ch, err := NewEmbeddedFormChannel(srv.URL, "contact", EncodingURLEncoded, srv.Client())
	require.NoError(t, err)

	res := ch.Attempt(context.Background(), sampleInquiry())

	require.True(t, res.Success, res.Detail)
	assert.Equal(t, []string{"contact"}, form["form-name"])
	for _, field := range EmbeddedFormFields {
		assert.NotEmpty(t, form[field], field)
	}
	assert.Equal(t, []string{"Sarah Lee"}, form["name"])
	assert.Equal(t, []string{"HIGH"}, form["priority"])
}

func TestEmbeddedFormChannel_Multipart(t *testing.T) {
	t.Parallel()

	var values map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error: %v", err)
			return
		}
		values = r.MultipartForm.Value
	}))
	t.Cleanup(srv.Close)

	ch, err := NewEmbeddedFormChannel(srv.URL, "contact", EncodingMultipart, srv.Client())
	require.NoError(t, err)

	res := ch.Attempt(context.Background(), sampleInquiry())

	require.True(t, res.Success, res.Detail)
	assert.Equal(t, []string{"contact"}, values["form-name"])
	assert.Equal(t, []string{"555-0000"}, values["phone"])
	assert.Equal(t, []string{"HIGH"}, values["priority"])
}

func TestEmbeddedFormChannel_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := NewEmbeddedFormChannel("http://x", "", EncodingURLEncoded, nil)
	assert.Error(t, err)

	_, err = NewEmbeddedFormChannel("http://x", "contact", "xml", nil)
	assert.Error(t, err)
}

func TestEmbeddedFormChannel_Non2xxIsFailure(t *testing.T) {
	t.Parallel()

	srv, _ := captureServer(t, http.StatusNotFound, "Not Found")
	ch, err := NewEmbeddedFormChannel(srv.URL, "contact", "", srv.Client())
	require.NoError(t, err)

	res := ch.Attempt(context.Background(), sampleInquiry())

	assert.False(t, res.Success)
	assert.Contains(t, res.Detail, "404")
}

func TestFromConfig_PriorityOrderAndSkipping(t *testing.T) {
	t.Parallel()

	cfg := &config.DeliveryConfig{
		FunctionURL:          "https://fn.example/send-inquiry-email",
		EmbeddedFormURL:      "https://site.example/",
		EmbeddedFormName:     "contact",
		EmbeddedFormEncoding: EncodingURLEncoded,
		Priority:             []string{"embedded_form", "relay", "function"},
	}

	chs, err := FromConfig(cfg, nil)
	require.NoError(t, err)

	ids := make([]string, len(chs))
	for i, ch := range chs {
		ids[i] = ch.ID()
	}
	assert.Equal(t, []string{"embedded_form", "function"}, ids)
}

func TestFromConfig_UnknownOrDuplicate(t *testing.T) {
	t.Parallel()

	_, err := FromConfig(&config.DeliveryConfig{Priority: []string{"pigeon"}}, nil)
	assert.ErrorContains(t, err, "pigeon")

	_, err = FromConfig(&config.DeliveryConfig{Priority: []string{"relay", "relay"}}, nil)
	assert.ErrorContains(t, err, "twice")
}
