// Package moderation implements the blog comment workflow: creation,
// status transitions, the public read path and moderator notifications.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"
	"workplacemapping/internal/metrics"
	"workplacemapping/internal/util"
	apperrors "workplacemapping/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	maxTransitionRounds = 3

	DefaultQueueLimit = 50
	MaxQueueLimit     = 200
)

// CommentStore is the persistence the service needs.
type CommentStore interface {
	Create(ctx context.Context, c *domain.Comment) error
	Get(ctx context.Context, id string) (*domain.Comment, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.CommentStatus) (bool, error)
	ApprovedThreads(ctx context.Context, postID string) ([]domain.Thread, error)
	List(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, int64, error)
	CountByStatus(ctx context.Context) (map[domain.CommentStatus]int64, error)
	Delete(ctx context.Context, id string) error
}

// PostLookup resolves a post by id or slug.
type PostLookup interface {
	Get(ctx context.Context, idOrSlug string) (*domain.Post, error)
}

// Notifier sends comment emails. Implementations must not block the caller.
type Notifier interface {
	NotifyCreation(ctx context.Context, c domain.Comment, post domain.Post)
	NotifyApproval(ctx context.Context, c domain.Comment, post domain.Post)
}

// ThreadCache holds the public thread list per post id.
type ThreadCache interface {
	Get(ctx context.Context, postID string) ([]domain.Thread, bool, error)
	Set(ctx context.Context, postID string, threads []domain.Thread) error
	Invalidate(ctx context.Context, postID string) error
}

// CommentInput is what a visitor submits.
type CommentInput struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,address,max=254"`
	Website  string  `json:"website" validate:"omitempty,http_url,max=500"`
	Content  string  `json:"content" validate:"required,max=5000"`
	ParentID *string `json:"parentId"`
}

func (in CommentInput) trimmed() CommentInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Website = strings.TrimSpace(in.Website)
	in.Content = strings.TrimSpace(in.Content)
	if in.ParentID != nil {
		id := strings.TrimSpace(*in.ParentID)
		if id == "" {
			in.ParentID = nil
		} else {
			in.ParentID = &id
		}
	}
	return in
}

// TransitionResult reports what a Transition call did. Comment is the state
// after the call whether or not anything changed.
type TransitionResult struct {
	Changed    bool                      `json:"changed"`
	Comment    *domain.Comment           `json:"comment"`
	Transition *domain.CommentTransition `json:"transition,omitempty"`
}

// Queue is one page of the moderation view.
type Queue struct {
	Comments []domain.Comment               `json:"comments"`
	Total    int64                          `json:"total"`
	Counts   map[domain.CommentStatus]int64 `json:"counts"`
}

// Service coordinates comment storage, caching and notifications.
type Service struct {
	comments CommentStore
	posts    PostLookup
	notifier Notifier
	cache    ThreadCache
	validate *validator.Validate
	group    singleflight.Group
	now      func() time.Time
	log      *logrus.Entry

	// genMu guards generations and is held across cache.Set so a load that
	// started before an invalidation never writes its result back.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewService creates the service. cache may be nil.
func NewService(comments CommentStore, posts PostLookup, notifier Notifier, cache ThreadCache) *Service {
	return &Service{
		comments: comments,
		posts:    posts,
		notifier: notifier,
		cache:    cache,
		validate: util.NewValidator(),
		now:      time.Now,
		log:      logging.For("moderation"),

		generations: make(map[string]uint64),
	}
}

// Create stores a new Pending comment on the post and tells the moderator.
func (s *Service) Create(ctx context.Context, postRef string, in CommentInput) (*domain.Comment, error) {
	in = in.trimmed()
	if err := s.validate.Struct(in); err != nil {
		fields, msgs := util.FieldErrors(err)
		if fields == nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to validate comment", err)
		}
		return nil, apperrors.NewValidation("Please correct the following: "+strings.Join(msgs, ", "), fields)
	}

	post, err := s.posts.Get(ctx, postRef)
	if err != nil {
		return nil, err
	}

	c := &domain.Comment{
		PostID:      post.ID,
		ParentID:    in.ParentID,
		AuthorName:  in.Name,
		AuthorEmail: strings.ToLower(in.Email),
		Content:     in.Content,
	}
	if in.Website != "" {
		website := in.Website
		c.AuthorWebsite = &website
	}

	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	metrics.RecordCommentCreated()

	s.log.WithFields(logrus.Fields{
		"comment_id": c.ID,
		"post_id":    c.PostID,
		"reply":      c.IsReply(),
	}).Info("comment created")

	s.notifier.NotifyCreation(ctx, *c, *post)
	return c, nil
}

// Transition moves a comment to the target status if the state machine
// allows it from the current status. A disallowed move is not an error; the
// result reports Changed=false and nothing is written or sent.
//
// Concurrent moderators race through a compare-and-set on the stored status.
// The loser re-reads and re-evaluates against the winner's status.
func (s *Service) Transition(ctx context.Context, id string, to domain.CommentStatus) (TransitionResult, error) {
	if _, err := domain.ParseCommentStatus(string(to)); err != nil {
		return TransitionResult{}, err
	}

	for round := 0; round < maxTransitionRounds; round++ {
		c, err := s.comments.Get(ctx, id)
		if err != nil {
			return TransitionResult{}, err
		}

		from := c.Status
		if !domain.CanTransition(from, to) {
			metrics.RecordCommentTransition(string(from), string(to), false)
			return TransitionResult{Comment: c}, nil
		}

		won, err := s.comments.CompareAndSetStatus(ctx, id, from, to)
		if err != nil {
			return TransitionResult{}, err
		}
		if !won {
			s.log.WithFields(logrus.Fields{"comment_id": id, "from": from, "to": to, "round": round + 1}).
				Debug("status changed underneath, re-reading")
			continue
		}

		now := s.now().UTC()
		c.Status = to
		c.UpdatedAt = now
		metrics.RecordCommentTransition(string(from), string(to), true)
		s.log.WithFields(logrus.Fields{"comment_id": id, "from": from, "to": to}).Info("comment status changed")

		s.invalidate(ctx, c.PostID)
		if to == domain.StatusApproved {
			s.notifier.NotifyApproval(ctx, *c, s.postFor(ctx, c.PostID))
		}

		return TransitionResult{
			Changed: true,
			Comment: c,
			Transition: &domain.CommentTransition{
				CommentID: id,
				From:      from,
				To:        to,
				Timestamp: now,
			},
		}, nil
	}

	c, err := s.comments.Get(ctx, id)
	if err != nil {
		return TransitionResult{}, err
	}
	s.log.WithFields(logrus.Fields{"comment_id": id, "to": to}).Warn("gave up after repeated status conflicts")
	return TransitionResult{Comment: c}, nil
}

// PublicThreads returns the approved discussion for a post, oldest first.
func (s *Service) PublicThreads(ctx context.Context, postRef string) ([]domain.Thread, error) {
	post, err := s.posts.Get(ctx, postRef)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		threads, ok, err := s.cache.Get(ctx, post.ID)
		if err != nil {
			s.log.WithError(err).WithField("post_id", post.ID).Warn("thread cache read failed")
		} else if ok {
			return threads, nil
		}
	}

	gen := s.generation(post.ID)
	// The load outlives any single caller; waiters share its result.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(fmt.Sprintf("%s#%d", post.ID, gen), func() (any, error) {
		threads, err := s.comments.ApprovedThreads(loadCtx, post.ID)
		if err != nil {
			return nil, err
		}
		s.storeThreads(loadCtx, post.ID, gen, threads)
		return threads, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Thread), nil
}

// ModerationQueue lists comments for moderators together with per-status
// counts. Limit is clamped to MaxQueueLimit.
func (s *Service) ModerationQueue(ctx context.Context, f domain.CommentFilter) (Queue, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultQueueLimit
	}
	if f.Limit > MaxQueueLimit {
		f.Limit = MaxQueueLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	rows, total, err := s.comments.List(ctx, f)
	if err != nil {
		return Queue{}, err
	}
	counts, err := s.comments.CountByStatus(ctx)
	if err != nil {
		return Queue{}, err
	}
	if rows == nil {
		rows = []domain.Comment{}
	}
	return Queue{Comments: rows, Total: total, Counts: counts}, nil
}

// Delete removes a comment and its replies.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.comments.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"comment_id": id, "post_id": c.PostID}).Info("comment deleted")
	s.invalidate(ctx, c.PostID)
	return nil
}

func (s *Service) generation(postID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[postID]
}

// storeThreads caches a load unless the post was invalidated after it began.
func (s *Service) storeThreads(ctx context.Context, postID string, gen uint64, threads []domain.Thread) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[postID] != gen {
		s.log.WithField("post_id", postID).Debug("threads changed during load, not caching")
		return
	}
	if err := s.cache.Set(ctx, postID, threads); err != nil {
		s.log.WithError(err).WithField("post_id", postID).Warn("thread cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, postID string) {
	s.genMu.Lock()
	s.generations[postID]++
	s.genMu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, postID); err != nil {
		s.log.WithError(err).WithField("post_id", postID).Warn("thread cache invalidation failed")
	}
}

// postFor loads the post for a notification. A lookup failure falls back to
// the id so the email still goes out.
func (s *Service) postFor(ctx context.Context, postID string) domain.Post {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		if !errors.Is(err, domain.ErrPostNotFound) {
			s.log.WithError(err).WithField("post_id", postID).Warn("post lookup for notification failed")
		}
		return domain.Post{ID: postID, Title: postID}
	}
	return *post
}
