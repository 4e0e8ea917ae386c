package delivery

import (
	"fmt"
	"strings"

	"workplacemapping/internal/domain"
)

const SuccessMessage = "Thank you for your inquiry. We'll respond within 24 hours."

const (
	DefaultContactEmail = "team@workplacemapping.com"
	DefaultBookingURL   = "https://tidycal.com/jamesbrowntv/workplace-mapping-consultation"
)

// Copy holds the fallback contact routes shown when nothing got through.
type Copy struct {
	ContactEmail string
	BookingURL   string
}

// withDefaults fills any empty route so the failure copy is never blank.
func (c Copy) withDefaults() Copy {
	if strings.TrimSpace(c.ContactEmail) == "" {
		c.ContactEmail = DefaultContactEmail
	}
	if strings.TrimSpace(c.BookingURL) == "" {
		c.BookingURL = DefaultBookingURL
	}
	return c
}

// FailureMessage always names both fallback routes.
func (c Copy) FailureMessage() string {
	c = c.withDefaults()
	return fmt.Sprintf(
		"We're sorry, we couldn't send your inquiry right now. Please email us directly at %s or book a consultation at %s.",
		c.ContactEmail, c.BookingURL,
	)
}

// Aggregate combines the persistence result and channel attempts.
func Aggregate(persisted bool, attempts []domain.ChannelAttempt, msgs Copy) domain.SubmissionResult {
	notified := false
	for _, a := range attempts {
		if a.Outcome == domain.OutcomeSuccess {
			notified = true
			break
		}
	}

	if attempts == nil {
		attempts = []domain.ChannelAttempt{}
	}

	result := domain.SubmissionResult{
		Success:   persisted || notified,
		Persisted: persisted,
		Notified:  notified,
		Attempts:  attempts,
	}
	if result.Success {
		result.UserMessage = SuccessMessage
	} else {
		result.UserMessage = msgs.FailureMessage()
	}
	return result
}
