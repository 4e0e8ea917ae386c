// Package delivery turns a contact form submission into a stored inquiry and
// a notification to the site owner, trying each configured channel in
// priority order until one succeeds.
package delivery

import (
	"context"

	"workplacemapping/internal/domain"
)

// ChannelResult is what a channel reports back. Failures are data, never
// errors.
type ChannelResult struct {
	Success bool
	Detail  string
}

// NotificationChannel delivers an inquiry to the site owner through one
// provider.
type NotificationChannel interface {
	ID() string
	Attempt(ctx context.Context, in domain.InquiryInput) ChannelResult
}

// Persistence stores an inquiry once and reports whether it was written.
type Persistence interface {
	Save(ctx context.Context, in domain.InquiryInput) bool
}
