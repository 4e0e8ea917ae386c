package services

import (
	"context"
	"net/http"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"

	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
)

const (
	defaultInquiryPage = 50
	maxInquiryPage     = 200
)

// Submitter runs one contact form submission.
type Submitter interface {
	Submit(ctx context.Context, in domain.InquiryInput) domain.SubmissionResult
}

// InquiryLister reads stored inquiries for staff.
type InquiryLister interface {
	List(ctx context.Context, offset, limit int) ([]domain.ContactInquiry, int64, error)
}

type inquiryList struct {
	Inquiries []domain.ContactInquiry `json:"inquiries"`
	Total     int64                   `json:"total"`
	Offset    int                     `json:"offset"`
	Limit     int                     `json:"limit"`
}

// ContactService exposes the contact form
type ContactService struct {
	submitter Submitter
	inquiries InquiryLister
	throttle  *Throttle
	auth      *Authenticator
	log       *logrus.Entry
}

// NewContactService creates a new contact service. throttle may be nil.
func NewContactService(submitter Submitter, inquiries InquiryLister, throttle *Throttle, auth *Authenticator) *ContactService {
	return &ContactService{
		submitter: submitter,
		inquiries: inquiries,
		throttle:  throttle,
		auth:      auth,
		log:       logging.For("contact"),
	}
}

func (s *ContactService) Mount(mux goahttp.Muxer) {
	mux.Handle(http.MethodGet, "/api/v1/contact/inquiry-types", s.handleInquiryTypes)
	mux.Handle(http.MethodPost, "/api/v1/contact", s.throttle.Wrap("contact", s.handleSubmit))
	mux.Handle(http.MethodGet, "/api/v1/contact", s.auth.RequireStaff(s.handleList))
}

func (s *ContactService) handleInquiryTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string][]string{"inquiryTypes": domain.InquiryTypes})
}

// handleSubmit answers 200 when the inquiry was stored or delivered, 400 for
// invalid input and 503 when everything failed. The body is always the
// submission result.
func (s *ContactService) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in domain.InquiryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	// A client hanging up must not cut the channel chain short.
	res := s.submitter.Submit(context.WithoutCancel(r.Context()), in)

	status := http.StatusOK
	switch {
	case res.FieldErrors != nil:
		status = http.StatusBadRequest
	case !res.Success:
		status = http.StatusServiceUnavailable
	}

	s.log.WithFields(logrus.Fields{
		"success":   res.Success,
		"persisted": res.Persisted,
		"notified":  res.Notified,
		"attempts":  len(res.Attempts),
		"status":    status,
	}).Info("contact submission handled")

	writeJSON(r.Context(), w, status, res)
}

func (s *ContactService) handleList(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r, defaultInquiryPage, maxInquiryPage)

	rows, total, err := s.inquiries.List(r.Context(), offset, limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if rows == nil {
		rows = []domain.ContactInquiry{}
	}
	writeJSON(r.Context(), w, http.StatusOK, inquiryList{Inquiries: rows, Total: total, Offset: offset, Limit: limit})
}
