package models

import (
	"fmt"
	"time"
)

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	HomePage  *string   `gorm:"size:200" json:"home_page"` // Optional
	Text      string    `gorm:"type:text;not null" json:"text"`
	File      *string   `gorm:"size:255" json:"file"` // Stored name, e.g. comment_files/<uuid>.png
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	ParentID  *uint     `gorm:"index" json:"parent_id"` // Nullable for top-level comments
	Parent    *Comment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"parent,omitempty"`
	Replies   []Comment `gorm:"foreignKey:ParentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"replies,omitempty"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    Author    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}

func (c Comment) String() string {
	return fmt.Sprintf("%d from %s", c.ID, c.Author)
}

// IsTopLevel reports whether the comment has no parent.
func (c Comment) IsTopLevel() bool {
	return c.ParentID == nil
}
