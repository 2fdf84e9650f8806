package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"spacomments/internal/models"
)

var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrAuthorNotFound  = errors.New("author not found")
)

// CommentStore owns author and comment rows.
type CommentStore struct {
	db *gorm.DB
}

func NewCommentStore(db *gorm.DB) *CommentStore {
	return &CommentStore{db: db}
}

// Transaction runs fn against a store bound to one database transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *CommentStore) Transaction(ctx context.Context, fn func(tx *CommentStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&CommentStore{db: tx})
	})
}

// GetOrCreateAuthor returns the first author matching both username and
// email exactly, creating one when none exists.
func (s *CommentStore) GetOrCreateAuthor(ctx context.Context, username, email string) (*models.Author, error) {
	author := models.Author{}
	err := s.db.WithContext(ctx).
		Where(models.Author{Username: username, Email: email}).
		FirstOrCreate(&author).Error
	if err != nil {
		return nil, fmt.Errorf("get or create author: %w", err)
	}
	return &author, nil
}

func (s *CommentStore) GetComment(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	err := s.db.WithContext(ctx).Joins("Author").First(&comment, "comments.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	return &comment, nil
}

// CreateComment inserts the comment row only; AuthorID and ParentID must
// already point at existing rows.
func (s *CommentStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error; err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *CommentStore) CountTopLevel(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).Where("parent_id IS NULL").Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return total, nil
}

// ListTopLevel returns one page of comments without a parent. The author is
// joined in the same query and replies are preloaded with their authors, so the
// number of queries does not depend on the page size.
func (s *CommentStore) ListTopLevel(ctx context.Context, key models.SortKey, limit, offset int) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Joins("Author").
		Preload("Replies", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC, id ASC")
		}).
		Preload("Replies.Author").
		Where("comments.parent_id IS NULL").
		Order(orderColumn(key)).
		Order(clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: "id"}, Desc: key.Desc}).
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func orderColumn(key models.SortKey) clause.OrderByColumn {
	var col clause.Column
	switch key.Field {
	case models.SortByUsername:
		col = clause.Column{Table: "Author", Name: "username"}
	case models.SortByEmail:
		col = clause.Column{Table: "Author", Name: "email"}
	default:
		col = clause.Column{Table: clause.CurrentTable, Name: "created_at"}
	}
	return clause.OrderByColumn{Column: col, Desc: key.Desc}
}

// DeleteComment removes a comment; its replies go with it through the
// foreign key cascade.
func (s *CommentStore) DeleteComment(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Comment{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete comment %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCommentNotFound
	}
	return nil
}

// DeleteAuthor removes an author and, by cascade, all their comments.
func (s *CommentStore) DeleteAuthor(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Author{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete author %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAuthorNotFound
	}
	return nil
}
