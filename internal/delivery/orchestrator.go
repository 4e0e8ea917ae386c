package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"
	"workplacemapping/internal/metrics"
	"workplacemapping/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const DefaultChannelTimeout = 8 * time.Second

const (
	outcomeSuccess      = "success"
	outcomeTotalFailure = "total_failure"
	outcomeInvalid      = "invalid"
)

// Options tune an Orchestrator. Zero values select defaults, including each
// empty Copy route.
type Options struct {
	ChannelTimeout time.Duration
	Copy           Copy
	Now            func() time.Time
}

// Orchestrator runs one submission through validation, persistence and the
// channel chain.
type Orchestrator struct {
	store    Persistence
	channels []NotificationChannel
	validate *validator.Validate
	timeout  time.Duration
	msgs     Copy
	now      func() time.Time
	log      *logrus.Entry
}

// NewOrchestrator creates an orchestrator. channels are tried in slice order.
func NewOrchestrator(store Persistence, channels []NotificationChannel, opts Options) *Orchestrator {
	if opts.ChannelTimeout <= 0 {
		opts.ChannelTimeout = DefaultChannelTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:    store,
		channels: append([]NotificationChannel(nil), channels...),
		validate: util.NewValidator(),
		timeout:  opts.ChannelTimeout,
		msgs:     opts.Copy.withDefaults(),
		now:      opts.Now,
		log:      logging.For("contact"),
	}
}

// Channels returns the channel ids in the order they are tried.
func (o *Orchestrator) Channels() []string {
	ids := make([]string, len(o.channels))
	for i, ch := range o.channels {
		ids[i] = ch.ID()
	}
	return ids
}

// Submit validates the input, stores it once and then tries each channel
// until one succeeds. Invalid input touches neither the store nor any channel.
func (o *Orchestrator) Submit(ctx context.Context, in domain.InquiryInput) domain.SubmissionResult {
	in = in.Trimmed()

	if err := o.validate.Struct(in); err != nil {
		fields, messages := util.FieldErrors(err)
		o.log.WithField("fields", strings.Join(keys(fields), ",")).Info("submission rejected: validation failed")
		metrics.RecordSubmission(outcomeInvalid)
		return domain.SubmissionResult{
			Attempts:    []domain.ChannelAttempt{},
			UserMessage: "Please correct the following: " + strings.Join(messages, "; ") + ".",
			FieldErrors: fields,
		}
	}

	entry := o.log.WithFields(logrus.Fields{
		"email":        in.Email,
		"inquiry_type": in.InquiryType,
		"priority":     in.Priority(),
	})
	entry.Info("submission received")

	// The store write runs alongside the channel chain; neither waits on the other.
	persistDone := make(chan bool, 1)
	go func() {
		persistDone <- o.persist(ctx, in)
	}()

	attempts := make([]domain.ChannelAttempt, 0, len(o.channels))
	for _, ch := range o.channels {
		started := o.now()
		res := o.attempt(ctx, ch, in)
		metrics.RecordChannelAttempt(ch.ID(), res.Success, o.now().Sub(started))

		attempt := domain.ChannelAttempt{
			ChannelID:   ch.ID(),
			Outcome:     domain.OutcomeFailure,
			Detail:      res.Detail,
			TimestampMs: started.UnixMilli(),
		}
		if res.Success {
			attempt.Outcome = domain.OutcomeSuccess
		}
		attempts = append(attempts, attempt)

		if res.Success {
			entry.WithField("channel", ch.ID()).Info("inquiry delivered")
			break
		}
		entry.WithFields(logrus.Fields{"channel": ch.ID(), "detail": res.Detail}).Warn("channel failed, trying next")
	}

	persisted := <-persistDone
	metrics.RecordPersist(persisted)

	result := Aggregate(persisted, attempts, o.msgs)

	outcome := outcomeSuccess
	if !result.Success {
		outcome = outcomeTotalFailure
		entry.WithField("attempts", len(attempts)).Error("submission failed: not stored and no channel delivered")
	}
	metrics.RecordSubmission(outcome)

	return result
}

func (o *Orchestrator) persist(ctx context.Context, in domain.InquiryInput) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("panic", r).Error("persistence panicked")
			ok = false
		}
	}()
	return o.store.Save(ctx, in)
}

// attempt enforces the per-channel deadline even if the channel ignores its
// context.
func (o *Orchestrator) attempt(ctx context.Context, ch NotificationChannel, in domain.InquiryInput) ChannelResult {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan ChannelResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ChannelResult{Detail: fmt.Sprintf("channel panicked: %v", r)}
			}
		}()
		done <- ch.Attempt(ctx, in)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ChannelResult{Detail: fmt.Sprintf("timed out after %s", o.timeout)}
		}
		return ChannelResult{Detail: fmt.Sprintf("cancelled: %v", ctx.Err())}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
