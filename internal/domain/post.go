package domain

import "time"

// Post is the blog post a comment belongs to. Posts are managed elsewhere;
// this service only reads them.
type Post struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	Title     string    `gorm:"not null" json:"title"`
	Status    string    `gorm:"type:varchar(16);default:'published'" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "blog_posts"
}
