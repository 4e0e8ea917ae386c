// Package repository holds the gorm-backed stores.
package repository

import (
	"context"
	"fmt"
	"time"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"
	"workplacemapping/internal/metrics"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InquiryRepository is the write-once store for contact form submissions.
// There is deliberately no update or delete.
type InquiryRepository struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewInquiryRepository(db *gorm.DB) *InquiryRepository {
	return &InquiryRepository{db: db, log: logging.For("persistence")}
}

// Save inserts one row. Any storage error is logged and reported as false.
func (r *InquiryRepository) Save(ctx context.Context, in domain.InquiryInput) bool {
	row := domain.NewContactInquiry(in)

	start := time.Now()
	err := r.db.WithContext(ctx).Create(row).Error
	metrics.RecordDBQuery("inquiry_insert", time.Since(start), err)

	if err != nil {
		r.log.WithError(err).WithField("email", row.Email).Error("failed to store inquiry")
		return false
	}

	r.log.WithFields(logrus.Fields{"id": row.ID, "email": row.Email}).Info("inquiry stored")
	return true
}

// List returns stored inquiries, newest first.
func (r *InquiryRepository) List(ctx context.Context, offset, limit int) ([]domain.ContactInquiry, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.ContactInquiry{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contact inquiries: %w", err)
	}

	var rows []domain.ContactInquiry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch contact inquiries: %w", err)
	}
	return rows, total, nil
}
