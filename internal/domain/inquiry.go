package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// InquiryTypes is the catalogue offered by the contact form. Submissions with
// other values are still accepted.
var InquiryTypes = []string{
	"Schedule a Consultation",
	"Communication Diagnostic ($10,000)",
	"Fractional Internal Communications Strategist",
	"Complete Workplace Mapping",
	"Workshops & Team Training",
	"Speaking Engagements",
	"Press Inquiries & Interviews",
	"Other Inquiry",
}

const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
)

// InquiryInput is a visitor's contact form submission.
type InquiryInput struct {
	InquiryType string `json:"inquiryType" validate:"required"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Company     string `json:"company" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	Email       string `json:"email" validate:"required,address"`
	Message     string `json:"message" validate:"required"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (in InquiryInput) Trimmed() InquiryInput {
	return InquiryInput{
		InquiryType: strings.TrimSpace(in.InquiryType),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Title:       strings.TrimSpace(in.Title),
		Company:     strings.TrimSpace(in.Company),
		Phone:       strings.TrimSpace(in.Phone),
		Email:       strings.TrimSpace(in.Email),
		Message:     strings.TrimSpace(in.Message),
	}
}

func (in InquiryInput) FullName() string {
	return strings.TrimSpace(in.FirstName + " " + in.LastName)
}

// Priority flags diagnostic engagements for faster follow-up.
func (in InquiryInput) Priority() string {
	if strings.Contains(in.InquiryType, "Diagnostic") {
		return PriorityHigh
	}
	return PriorityMedium
}

// ContactInquiry is the persisted form of an InquiryInput. Rows are only ever
// inserted.
type ContactInquiry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	InquiryType string    `gorm:"not null" json:"inquiryType"`
	FirstName   string    `gorm:"not null" json:"firstName"`
	LastName    string    `gorm:"not null" json:"lastName"`
	Title       string    `gorm:"not null" json:"title"`
	Company     string    `gorm:"not null" json:"company"`
	Phone       string    `gorm:"not null" json:"phone"`
	Email       string    `gorm:"not null;index" json:"email"`
	Message     string    `gorm:"type:text;not null" json:"message"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name for ContactInquiry
func (ContactInquiry) TableName() string {
	return "contact_inquiries"
}

// BeforeCreate hook
func (c *ContactInquiry) BeforeCreate(tx *gorm.DB) error {
	c.CreatedAt = time.Now().UTC()
	return nil
}

// NewContactInquiry maps a submission onto a new row.
func NewContactInquiry(in InquiryInput) *ContactInquiry {
	return &ContactInquiry{
		InquiryType: in.InquiryType,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Title:       in.Title,
		Company:     in.Company,
		Phone:       in.Phone,
		Email:       strings.ToLower(in.Email),
		Message:     in.Message,
	}
}

// AttemptOutcome is the result of one notification channel invocation.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// ChannelAttempt records one invoked channel. Skipped channels have none.
type ChannelAttempt struct {
	ChannelID   string         `json:"channelId"`
	Outcome     AttemptOutcome `json:"outcome"`
	Detail      string         `json:"detail,omitempty"`
	TimestampMs int64          `json:"timestamp"`
}

// SubmissionResult is what the visitor's submission produced.
// Success is always Persisted || Notified.
type SubmissionResult struct {
	Success     bool              `json:"success"`
	Persisted   bool              `json:"persisted"`
	Notified    bool              `json:"notified"`
	Attempts    []ChannelAttempt  `json:"attempts"`
	UserMessage string            `json:"userMessage"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}
