package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/metrics"

	"gorm.io/gorm"
)

// CommentRepository stores blog comments.
type CommentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts c as Pending. A reply must point at a top-level comment on
// the same post.
func (r *CommentRepository) Create(ctx context.Context, c *domain.Comment) error {
	c.Status = domain.StatusPending

	start := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.ParentID != nil {
			var parent domain.Comment
			err := tx.Select("id", "post_id", "parent_id").Where("id = ?", *c.ParentID).First(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInvalidParent
			}
			if err != nil {
				return err
			}
			if parent.PostID != c.PostID || parent.ParentID != nil {
				return domain.ErrInvalidParent
			}
		}
		return tx.Create(c).Error
	})
	metrics.RecordDBQuery("comment_insert", time.Since(start), err)

	if err != nil && !errors.Is(err, domain.ErrInvalidParent) {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return err
}

func (r *CommentRepository) Get(ctx context.Context, id string) (*domain.Comment, error) {
	var c domain.Comment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return &c, nil
}

// CompareAndSetStatus moves the comment to `to` only if it is still in
// `from`. It reports whether this call made the change.
func (r *CommentRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.CommentStatus) (bool, error) {
	start := time.Now()
	res := r.db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	metrics.RecordDBQuery("comment_status_cas", time.Since(start), res.Error)

	if res.Error != nil {
		return false, fmt.Errorf("failed to update comment status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ApprovedThreads returns approved top-level comments for a post with their
// approved replies, oldest first.
func (r *CommentRepository) ApprovedThreads(ctx context.Context, postID string) ([]domain.Thread, error) {
	var tops []domain.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND status = ? AND parent_id IS NULL", postID, domain.StatusApproved).
		Order("created_at ASC").
		Find(&tops).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments: %w", err)
	}
	if len(tops) == 0 {
		return []domain.Thread{}, nil
	}

	ids := make([]string, len(tops))
	for i := range tops {
		ids[i] = tops[i].ID
	}

	var replies []domain.Comment
	err = r.db.WithContext(ctx).
		Where("parent_id IN ? AND status = ?", ids, domain.StatusApproved).
		Order("created_at ASC").
		Find(&replies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch replies: %w", err)
	}

	return domain.BuildThreads(tops, replies), nil
}

// List returns comments for moderation, newest first, plus the total that
// matched the filter.
func (r *CommentRepository) List(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.Comment{})
	if f.PostID != "" {
		q = q.Where("post_id = ?", f.PostID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ParentID != nil {
		q = q.Where("parent_id = ?", *f.ParentID)
	}
	if f.TopLevelOnly {
		q = q.Where("parent_id IS NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count comments: %w", err)
	}

	var rows []domain.Comment
	q = q.Order("created_at DESC").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list comments: %w", err)
	}
	return rows, total, nil
}

// CountByStatus returns how many comments are in each status. Every status
// is present in the result.
func (r *CommentRepository) CountByStatus(ctx context.Context) (map[domain.CommentStatus]int64, error) {
	var rows []struct {
		Status domain.CommentStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Comment{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}

	counts := make(map[domain.CommentStatus]int64, len(domain.CommentStatuses))
	for _, s := range domain.CommentStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Delete removes a comment and its replies.
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", id).Delete(&domain.Comment{}).Error; err != nil {
			return fmt.Errorf("failed to delete replies: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&domain.Comment{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete comment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrCommentNotFound
		}
		return nil
	})
}
