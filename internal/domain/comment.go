package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrPostNotFound    = errors.New("post not found")
	ErrInvalidParent   = errors.New("parent comment must be a top-level comment on the same post")
	ErrInvalidStatus   = errors.New("invalid comment status")
)

// CommentStatus is the moderation state of a comment.
type CommentStatus string

const (
	StatusPending  CommentStatus = "pending"
	StatusApproved CommentStatus = "approved"
	StatusSpam     CommentStatus = "spam"
	StatusRejected CommentStatus = "rejected"
)

// CommentStatuses lists every status in moderation-tab order.
var CommentStatuses = []CommentStatus{StatusPending, StatusApproved, StatusSpam, StatusRejected}

// Rejected has no exits.
var commentTransitions = map[CommentStatus][]CommentStatus{
	StatusPending:  {StatusApproved, StatusSpam, StatusRejected},
	StatusApproved: {StatusPending},
	StatusSpam:     {StatusPending},
	StatusRejected: {},
}

// ParseCommentStatus accepts only the four known statuses.
func ParseCommentStatus(s string) (CommentStatus, error) {
	status := CommentStatus(s)
	if _, ok := commentTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// CanTransition reports whether a comment may move from one status to another.
func CanTransition(from, to CommentStatus) bool {
	for _, allowed := range commentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Comment is a visitor comment on a blog post.
type Comment struct {
	ID            string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID        string        `gorm:"type:varchar(64);not null;index" json:"postId"`
	ParentID      *string       `gorm:"type:varchar(36);index" json:"parentId,omitempty"`
	AuthorName    string        `gorm:"not null" json:"authorName"`
	AuthorEmail   string        `gorm:"not null" json:"authorEmail"`
	AuthorWebsite *string       `json:"authorWebsite,omitempty"`
	Content       string        `gorm:"type:text;not null" json:"content"`
	Status        CommentStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt     time.Time     `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "blog_comments"
}

// BeforeCreate hook
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// PublicComment is the view of a comment shown to site visitors.
type PublicComment struct {
	ID            string    `json:"id"`
	ParentID      *string   `json:"parentId,omitempty"`
	AuthorName    string    `json:"authorName"`
	AuthorWebsite *string   `json:"authorWebsite,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (c *Comment) Public() PublicComment {
	return PublicComment{
		ID:            c.ID,
		ParentID:      c.ParentID,
		AuthorName:    c.AuthorName,
		AuthorWebsite: c.AuthorWebsite,
		Content:       c.Content,
		CreatedAt:     c.CreatedAt,
	}
}

// Thread is an approved top-level comment with its approved replies.
type Thread struct {
	PublicComment
	Replies []PublicComment `json:"replies"`
}

// BuildThreads attaches replies to their top-level comment. Replies whose
// parent is not in tops are dropped.
func BuildThreads(tops, replies []Comment) []Thread {
	threads := make([]Thread, 0, len(tops))
	index := make(map[string]int, len(tops))
	for i := range tops {
		index[tops[i].ID] = len(threads)
		threads = append(threads, Thread{PublicComment: tops[i].Public(), Replies: []PublicComment{}})
	}
	for i := range replies {
		if replies[i].ParentID == nil {
			continue
		}
		if pos, ok := index[*replies[i].ParentID]; ok {
			threads[pos].Replies = append(threads[pos].Replies, replies[i].Public())
		}
	}
	return threads
}

// CommentTransition records an applied status change.
type CommentTransition struct {
	CommentID string        `json:"commentId"`
	From      CommentStatus `json:"from"`
	To        CommentStatus `json:"to"`
	Timestamp time.Time     `json:"timestamp"`
}

// CommentFilter selects comments for moderation views. Zero Status means
// every status. ParentID selects the replies to one comment; TopLevelOnly
// selects comments that are not replies. Setting both matches nothing.
type CommentFilter struct {
	PostID       string
	Status       CommentStatus
	ParentID     *string
	TopLevelOnly bool
	Offset       int
	Limit        int
}
