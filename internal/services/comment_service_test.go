package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"spacomments/internal/apperr"
	"spacomments/internal/db"
	"spacomments/internal/db/dbtest"
	"spacomments/internal/models"
	"spacomments/internal/storage"
	"spacomments/internal/utils"
)

type chanPublisher struct {
	events chan CommentEvent
}

func (p *chanPublisher) Publish(_ context.Context, e CommentEvent) error {
	p.events <- e
	return nil
}

// recordingStorage wraps a LocalStorage, failing the nth Save when failOn > 0.
type recordingStorage struct {
	*storage.LocalStorage
	mu      sync.Mutex
	saves   int
	failOn  int
	deleted []string
}

func (s *recordingStorage) Save(ctx context.Context, name string, r io.Reader) error {
	s.mu.Lock()
	s.saves++
	n := s.saves
	s.mu.Unlock()
	if n == s.failOn {
		return errors.New("disk full")
	}
	return s.LocalStorage.Save(ctx, name, r)
}

func (s *recordingStorage) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, name)
	s.mu.Unlock()
	return s.LocalStorage.Delete(ctx, name)
}

type fixture struct {
	svc     *CommentService
	gdb     *gorm.DB
	root    string
	storage *recordingStorage
	events  chan CommentEvent
	cache   *utils.Cache[*CommentPage]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	root := t.TempDir()
	st := &recordingStorage{LocalStorage: storage.NewLocalStorage(root, "/media/")}
	events := make(chan CommentEvent, 8)
	cache, err := utils.NewCache[*CommentPage](16)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	svc := NewCommentService(CommentServiceDeps{
		Store:    db.NewCommentStore(gdb),
		Storage:  st,
		Events:   &chanPublisher{events: events},
		Log:      logger,
		Cache:    cache,
		CacheTTL: time.Minute,
	})
	return &fixture{svc: svc, gdb: gdb, root: root, storage: st, events: events, cache: cache}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.gdb.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) attachments(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.root, storage.Namespace))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, storage.Namespace+"/"+e.Name())
	}
	return names
}

func submission() Submission {
	return Submission{
		Form: CommentForm{
			Username: "test_user",
			Email:    "test_user@gmail.com",
			Captcha:  "ABCDE",
			Text:     "Test comment",
		},
		CaptchaAnswer: "abcde",
	}
}

func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func canvasURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func TestSubmit_CreatesAuthorAndComment(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.Submit(context.Background(), submission())
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.count(t, &models.Author{}))
	assert.EqualValues(t, 1, f.count(t, &models.Comment{}))
	assert.Nil(t, c.ParentID)
	assert.Nil(t, c.File)
	assert.Nil(t, c.HomePage)
	assert.Equal(t, "test_user", c.Author.Username)
	assert.Equal(t, "Test comment", c.Text)

	select {
	case e := <-f.events:
		assert.Equal(t, EventCommentCreated, e.Type)
		assert.Equal(t, c.ID, e.CommentID)
	case <-time.After(2 * time.Second):
		t.Fatal("no comment.created event")
	}
}

func TestSubmit_ReusesAuthorAndStoresReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	parent, err := f.svc.Submit(ctx, submission())
	require.NoError(t, err)

	sub := submission()
	sub.ParentID = strconv.FormatUint(uint64(parent.ID), 10)
	sub.Form.HomePage = "https://example.com"
	reply, err := f.svc.Submit(ctx, sub)
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.count(t, &models.Author{}))
	assert.EqualValues(t, 2, f.count(t, &models.Comment{}))
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, parent.ID, *reply.ParentID)
	require.NotNil(t, reply.HomePage)
	assert.Equal(t, "https://example.com", *reply.HomePage)
}

func TestSubmit_NonDigitParentIsTopLevel(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{"", "abc", "-1", "1.0"} {
		sub := submission()
		sub.ParentID = raw
		c, err := f.svc.Submit(context.Background(), sub)
		require.NoError(t, err, raw)
		assert.Nil(t, c.ParentID, raw)
	}
}

func TestSubmit_ParentNotFound(t *testing.T) {
	f := newFixture(t)

	sub := submission()
	sub.ParentID = "10"
	sub.CanvasImage = canvasURL([]byte("png-bytes"))
	_, err := f.svc.Submit(context.Background(), sub)

	assert.ErrorIs(t, err, ErrParentNotFound)
	kind, ok := apperr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.NotFound, kind)

	assert.Zero(t, f.count(t, &models.Author{}), "author creation rolled back")
	assert.Zero(t, f.count(t, &models.Comment{}))
	assert.Empty(t, f.attachments(t))
}

func TestSubmit_ValidationErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(s *Submission)
		field  string
	}{
		{"username with space", func(s *Submission) { s.Form.Username = "test user" }, "username"},
		{"wrong captcha", func(s *Submission) { s.Form.Captcha = "zzzzz" }, "captcha"},
		{"no issued captcha", func(s *Submission) { s.CaptchaAnswer = "" }, "captcha"},
		{"text only tags", func(s *Submission) { s.Form.Text = "<p></p>" }, "text"},
		{"bad canvas", func(s *Submission) { s.CanvasImage = "garbage" }, "resized_image"},
		{"bad extension", func(s *Submission) { s.File = fileHeader(t, "evil.exe", []byte("MZ")) }, "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := submission()
			tt.mutate(&sub)
			_, err := f.svc.Submit(context.Background(), sub)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	assert.Zero(t, f.count(t, &models.Author{}))
	assert.Zero(t, f.count(t, &models.Comment{}))
}

func TestSubmit_StoresTextAsTyped(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"if a<b then", "<not a tag", "5 &lt; 6"} {
		sub := submission()
		sub.Form.Text = "  " + text + "\n"
		c, err := f.svc.Submit(context.Background(), sub)
		require.NoError(t, err, text)

		var stored models.Comment
		require.NoError(t, f.gdb.First(&stored, c.ID).Error)
		assert.Equal(t, text, stored.Text)
	}
}

func TestSubmit_RejectsMarkup(t *testing.T) {
	f := newFixture(t)
	sub := submission()
	sub.Form.Text = "<b>bold</b> claim"

	_, err := f.svc.Submit(context.Background(), sub)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "HTML tags are not allowed.", verr.Fields["text"])
	assert.Zero(t, f.count(t, &models.Comment{}))
}

func TestSubmit_CaptchaMessage(t *testing.T) {
	f := newFixture(t)
	sub := submission()
	sub.Form.Captcha = "wrong"

	_, err := f.svc.Submit(context.Background(), sub)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Invalid CAPTCHA.", verr.Fields["captcha"])
}

func TestSubmit_CanvasWithoutUpload(t *testing.T) {
	f := newFixture(t)
	data := []byte("resized png")

	sub := submission()
	sub.CanvasImage = canvasURL(data)
	c, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)

	require.NotNil(t, c.File)
	assert.Regexp(t, `^comment_files/[0-9a-f-]{36}\.png$`, *c.File)
	stored, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(*c.File)))
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestSubmit_CanvasReplacesUpload(t *testing.T) {
	f := newFixture(t)
	resized := []byte("small image")

	sub := submission()
	sub.File = fileHeader(t, "Photo.JPG", []byte("large original image"))
	sub.CanvasImage = canvasURL(resized)
	c, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)

	require.NotNil(t, c.File)
	assert.Regexp(t, `^comment_files/[0-9a-f-]{36}\.jpg$`, *c.File)
	stored, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(*c.File)))
	require.NoError(t, err)
	assert.Equal(t, resized, stored, "canvas bytes stored under the upload's name")
	assert.Equal(t, []string{*c.File}, f.attachments(t))
}

func TestSubmit_UploadOnly(t *testing.T) {
	f := newFixture(t)

	sub := submission()
	sub.File = fileHeader(t, "notes.txt", []byte("hello"))
	c, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)

	require.NotNil(t, c.File)
	stored, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(*c.File)))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(stored))
}

func TestSubmit_RollbackRemovesAttachment(t *testing.T) {
	f := newFixture(t)
	f.storage.failOn = 2

	sub := submission()
	sub.File = fileHeader(t, "photo.png", []byte("original"))
	sub.CanvasImage = canvasURL([]byte("resized"))
	_, err := f.svc.Submit(context.Background(), sub)
	require.ErrorContains(t, err, "disk full")

	assert.Zero(t, f.count(t, &models.Author{}))
	assert.Zero(t, f.count(t, &models.Comment{}))
	assert.Len(t, f.storage.deleted, 1)
	assert.Empty(t, f.attachments(t))
}

func TestListTopLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var top []*models.Comment
	for i := 0; i < 3; i++ {
		c, err := f.svc.Submit(ctx, submission())
		require.NoError(t, err)
		top = append(top, c)
	}
	sub := submission()
	sub.ParentID = strconv.FormatUint(uint64(top[0].ID), 10)
	_, err := f.svc.Submit(ctx, sub)
	require.NoError(t, err)

	page, err := f.svc.ListTopLevel(ctx, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "-created", page.SortKey.String())
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Comments, 3)
	assert.Equal(t, top[2].ID, page.Comments[0].ID, "newest first")
	assert.Len(t, page.Comments[2].Replies, 1)

	_, err = f.svc.ListTopLevel(ctx, "x", "asc", "")
	assert.ErrorIs(t, err, ErrInvalidOrdering)
	_, err = f.svc.ListTopLevel(ctx, "c", "desc", "2")
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestListTopLevel_CachePurgedOnSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, submission())
	require.NoError(t, err)

	first, err := f.svc.ListTopLevel(ctx, "u", "asc", "1")
	require.NoError(t, err)
	cached, err := f.svc.ListTopLevel(ctx, "u", "asc", "1")
	require.NoError(t, err)
	assert.Same(t, first, cached)

	_, err = f.svc.Submit(ctx, submission())
	require.NoError(t, err)

	fresh, err := f.svc.ListTopLevel(ctx, "u", "asc", "1")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.EqualValues(t, 2, fresh.Total)
}

func TestListTopLevel_StalePageNotCachedAfterSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a list request reads the board, then a submission commits before the
	// page is stored
	gen := f.svc.cacheGeneration()
	stale, err := f.svc.ListTopLevel(ctx, "c", "desc", "")
	require.NoError(t, err)
	f.cache.Purge()

	_, err = f.svc.Submit(ctx, submission())
	require.NoError(t, err)

	f.svc.cachePage("comments:-created:page:", stale, gen)
	_, ok := f.cache.Get("comments:-created:page:")
	assert.False(t, ok, "page read before the commit is not cached")

	fresh, err := f.svc.ListTopLevel(ctx, "c", "desc", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, fresh.Total)

	cached, err := f.svc.ListTopLevel(ctx, "c", "desc", "")
	require.NoError(t, err)
	assert.Same(t, fresh, cached, "pages read after the commit are cached")
}

func TestNewCommentService_Defaults(t *testing.T) {
	svc := NewCommentService(CommentServiceDeps{})
	assert.NotNil(t, svc.captcha)
	assert.IsType(t, NoopPublisher{}, svc.events)
	assert.Equal(t, logrus.StandardLogger(), svc.log)
	assert.False(t, svc.cacheEnabled())
}
