package repository

import (
	"context"
	"errors"
	"fmt"

	"workplacemapping/internal/domain"

	"gorm.io/gorm"
)

// PostRepository reads blog posts owned by the CMS.
type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Get looks a post up by id or slug.
func (r *PostRepository) Get(ctx context.Context, idOrSlug string) (*domain.Post, error) {
	var p domain.Post
	err := r.db.WithContext(ctx).Where("id = ? OR slug = ?", idOrSlug, idOrSlug).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}
