package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"spacomments/internal/apperr"
	"spacomments/internal/db"
	"spacomments/internal/models"
	"spacomments/internal/storage"
	"spacomments/internal/utils"
)

const (
	PageSize = 25

	publishTimeout = 10 * time.Second
	cleanupTimeout = 10 * time.Second
)

var ErrParentNotFound = fmt.Errorf("parent comment: %w", apperr.ErrNotFound)

// Submission is everything a create request carries.
type Submission struct {
	Form CommentForm
	// CaptchaAnswer is the answer issued with the form, empty if none was.
	CaptchaAnswer string
	File          *multipart.FileHeader
	// ParentID is the raw comment_parent_id value.
	ParentID string
	// CanvasImage is the raw resized_image data URL.
	CanvasImage string
}

// CommentPage is one page of top-level comments.
type CommentPage struct {
	Comments []models.Comment
	Pagination
	SortKey models.SortKey
}

type CommentServiceDeps struct {
	Store    *db.CommentStore
	Storage  storage.Storage
	Captcha  *CaptchaService
	Events   EventPublisher
	Log      logrus.FieldLogger
	Cache    *utils.Cache[*CommentPage]
	CacheTTL time.Duration
}

type CommentService struct {
	store    *db.CommentStore
	storage  storage.Storage
	captcha  *CaptchaService
	events   EventPublisher
	log      logrus.FieldLogger
	cache    *utils.Cache[*CommentPage]
	cacheTTL time.Duration
	validate *validator.Validate

	// cacheMu orders purges against stores; generation counts purges so a
	// page read before a commit is never stored after it.
	cacheMu    sync.Mutex
	generation uint64
}

func NewCommentService(deps CommentServiceDeps) *CommentService {
	s := &CommentService{
		store:    deps.Store,
		storage:  deps.Storage,
		captcha:  deps.Captcha,
		events:   deps.Events,
		log:      deps.Log,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		validate: newValidator(),
	}
	if s.captcha == nil {
		s.captcha = NewCaptchaService()
	}
	if s.events == nil {
		s.events = NoopPublisher{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

// ListTopLevel resolves the ordering codes and the page parameter and returns
// that page of comments without a parent. Empty codes mean newest first.
func (s *CommentService) ListTopLevel(ctx context.Context, orderBy, orderDir, page string) (*CommentPage, error) {
	if orderBy == "" {
		orderBy = DefaultOrderBy
	}
	if orderDir == "" {
		orderDir = DefaultOrderDir
	}
	key, err := ResolveOrdering(orderBy, orderDir)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("comments:%s:page:%s", key, page)
	gen := s.cacheGeneration()
	if s.cacheEnabled() {
		if cached, ok := s.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	total, err := s.store.CountTopLevel(ctx)
	if err != nil {
		return nil, err
	}
	pagination, err := Paginate(page, total, PageSize)
	if err != nil {
		return nil, err
	}

	comments, err := s.store.ListTopLevel(ctx, key, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, err
	}

	result := &CommentPage{Comments: comments, Pagination: pagination, SortKey: key}
	s.cachePage(cacheKey, result, gen)
	return result, nil
}

// Submit validates a submission and stores it. Validation failures return a
// *ValidationError before anything is written; an unknown parent returns
// ErrParentNotFound. Author, parent, attachment and comment are written in one
// transaction and attachments are removed again if it does not commit.
func (s *CommentService) Submit(ctx context.Context, sub Submission) (*models.Comment, error) {
	form := sub.Form.normalized()

	fields := validateForm(s.validate, form)
	if _, bad := fields["captcha"]; !bad && !s.captcha.Verify(sub.CaptchaAnswer, form.Captcha) {
		fields["captcha"] = "Invalid CAPTCHA."
	}
	if sub.File != nil && !AllowedFileExtensions[fileExtension(sub.File)] {
		fields["file"] = "File extension is not allowed. Allowed extensions are: jpg, jpeg, gif, png, txt."
	}
	var canvas []byte
	if sub.CanvasImage != "" {
		data, err := decodeCanvas(sub.CanvasImage)
		if err != nil {
			fields["resized_image"] = "The resized image could not be decoded."
		}
		canvas = data
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	var (
		comment *models.Comment
		written []string
	)
	err := s.store.Transaction(ctx, func(tx *db.CommentStore) error {
		author, err := tx.GetOrCreateAuthor(ctx, form.Username, form.Email)
		if err != nil {
			return err
		}

		parentID, err := resolveParent(ctx, tx, sub.ParentID)
		if err != nil {
			return err
		}

		c := &models.Comment{
			Text:     form.Text,
			AuthorID: author.ID,
			ParentID: parentID,
		}
		if form.HomePage != "" {
			c.HomePage = &form.HomePage
		}

		name, err := s.storeAttachments(ctx, sub.File, canvas, &written)
		if err != nil {
			return err
		}
		if name != "" {
			c.File = &name
		}

		if err := tx.CreateComment(ctx, c); err != nil {
			return err
		}
		c.Author = *author
		comment = c
		return nil
	})
	if err != nil {
		s.removeAttachments(written)
		return nil, err
	}

	s.invalidatePages()
	s.publish(comment)
	return comment, nil
}

func resolveParent(ctx context.Context, tx *db.CommentStore, raw string) (*uint, error) {
	if !utils.IsDigits(raw) {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil {
		return nil, fmt.Errorf("parent id %q: %w", raw, ErrParentNotFound)
	}
	parent, err := tx.GetComment(ctx, uint(id))
	if errors.Is(err, db.ErrCommentNotFound) {
		return nil, fmt.Errorf("parent id %d: %w", id, ErrParentNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &parent.ID, nil
}

// storeAttachments writes the uploaded file under a new name, then the canvas
// image under that same name. Without an upload the canvas gets a .png name.
func (s *CommentService) storeAttachments(ctx context.Context, fh *multipart.FileHeader, canvas []byte, written *[]string) (string, error) {
	var name string
	if fh != nil {
		name = storage.NewName(fileExtension(fh))
		f, err := fh.Open()
		if err != nil {
			return "", fmt.Errorf("open uploaded file: %w", err)
		}
		err = s.storage.Save(ctx, name, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("save uploaded file: %w", err)
		}
		*written = append(*written, name)
	}

	if canvas != nil {
		if name == "" {
			name = storage.NewName(".png")
			*written = append(*written, name)
		}
		if err := s.storage.Save(ctx, name, bytes.NewReader(canvas)); err != nil {
			return "", fmt.Errorf("save canvas image: %w", err)
		}
	}
	return name, nil
}

func (s *CommentService) removeAttachments(names []string) {
	for _, name := range names {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		if err := s.storage.Delete(ctx, name); err != nil {
			s.log.Errorf("[comments] failed to remove attachment %s after rollback: %v", name, err)
		}
		cancel()
	}
}

func (s *CommentService) publish(c *models.Comment) {
	event := newCommentCreatedEvent(c)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, event); err != nil {
			s.log.Errorf("[comments] failed to publish %s for comment %d: %v", event.Type, event.CommentID, err)
			return
		}
		s.log.Debugf("[comments] published %s for comment %d", event.Type, event.CommentID)
	}()
}

func (s *CommentService) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// cachePage stores a page read at generation gen, unless a submission has
// purged the cache since.
func (s *CommentService) cachePage(key string, page *CommentPage, gen uint64) {
	if !s.cacheEnabled() {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != gen {
		return
	}
	s.cache.Set(key, page, s.cacheTTL)
}

func (s *CommentService) invalidatePages() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.cacheEnabled() {
		s.cache.Purge()
	}
}

func (s *CommentService) cacheEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}
