package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"spacomments/internal/apperr"
	"spacomments/internal/services"
)

const (
	addedCommentText = "Your comment has successfully added."
	addedAnswerText  = "Your answer has successfully added."
	invalidFormText  = "Invalid form data."
)

type CommentHandler struct {
	comments *services.CommentService
	captcha  *services.CaptchaService
	pages    *Pages
	log      logrus.FieldLogger
}

func NewCommentHandler(comments *services.CommentService, captcha *services.CaptchaService, pages *Pages, log logrus.FieldLogger) *CommentHandler {
	return &CommentHandler{comments: comments, captcha: captcha, pages: pages, log: log}
}

// List renders a page of top-level comments with the submission form.
func (h *CommentHandler) List(c *gin.Context) {
	page, err := h.comments.ListTopLevel(c.Request.Context(), c.Query("orderby"), c.Query("orderdir"), c.Query("page"))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	orderBy, orderDir := services.OrderCodes(page.SortKey)

	// Flash messages and a rejected form are shown once
	session := sessions.Default(c)
	messages := popMessages(session)
	carry := popCarryOver(session)

	// New challenge on every render
	challenge, answer := h.captcha.GenerateChallenge()
	session.Set(captchaSessionKey, answer)
	h.saveSession(session)

	h.pages.Render(c, http.StatusOK, "comments/list.html", gin.H{
		"Page":       page,
		"Comments":   page.Comments,
		"OrderBy":    orderBy,
		"OrderDir":   orderDir,
		"Messages":   messages,
		"Form":       carry.Values,
		"FormErrors": carry.Errors,
		"Captcha":    challenge,
	})
}

// Create handles the comment form. Valid and invalid submissions both
// redirect back to the list; the outcome travels in the session.
func (h *CommentHandler) Create(c *gin.Context) {
	var form services.CommentForm
	if err := c.ShouldBind(&form); err != nil {
		_ = c.Error(fmt.Errorf("bind comment form: %w: %v", apperr.ErrBadRequest, err))
		c.Abort()
		return
	}

	file, err := c.FormFile("file")
	if err != nil && !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		_ = c.Error(fmt.Errorf("read uploaded file: %w: %v", apperr.ErrBadRequest, err))
		c.Abort()
		return
	}

	// Clear captcha after use
	session := sessions.Default(c)
	answer, _ := session.Get(captchaSessionKey).(string)
	session.Delete(captchaSessionKey)

	comment, err := h.comments.Submit(c.Request.Context(), services.Submission{
		Form:          form,
		CaptchaAnswer: answer,
		File:          uploaded(file),
		ParentID:      c.PostForm("comment_parent_id"),
		CanvasImage:   c.PostForm("resized_image"),
	})

	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		session.AddFlash(Flash{Level: "danger", Text: invalidFormText}, messagesFlashKey)
		session.AddFlash(FormCarryOver{Values: form.Values(), Errors: verr.Fields}, formFlashKey)
	case err != nil:
		h.saveSession(session)
		_ = c.Error(err)
		c.Abort()
		return
	default:
		text := addedCommentText
		if comment.ParentID != nil {
			text = addedAnswerText
		}
		session.AddFlash(Flash{Level: "success", Text: text}, messagesFlashKey)
	}

	h.saveSession(session)
	c.Redirect(http.StatusFound, "/")
}

// saveSession retries without the form carry-over when the session cannot be
// stored, typically a cookie over the size limit.
func (h *CommentHandler) saveSession(session sessions.Session) {
	err := session.Save()
	if err == nil {
		return
	}
	h.log.Warnf("[comments] session not saved, dropping form carry-over: %v", err)
	session.Flashes(formFlashKey)
	if err := session.Save(); err != nil {
		h.log.Errorf("[comments] session not saved: %v", err)
	}
}

func uploaded(fh *multipart.FileHeader) *multipart.FileHeader {
	if fh == nil || fh.Filename == "" {
		return nil
	}
	return fh
}
