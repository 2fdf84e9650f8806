package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"spacomments/internal/utils"
)

// CommentForm is the user-editable part of a submission. Fields are bound from
// the request by their form tags; validation runs in the service.
type CommentForm struct {
	Username string `form:"username" validate:"required,min=2,max=100,username"`
	Email    string `form:"email" validate:"required,email"`
	HomePage string `form:"home_page" validate:"omitempty,max=200,http_url"`
	Captcha  string `form:"captcha" validate:"required"`
	Text     string `form:"text" validate:"required,notags"`
}

// Values returns the submitted values keyed by form field, for re-populating
// the form. The captcha response is not carried.
func (f CommentForm) Values() map[string]string {
	return map[string]string{
		"username":  f.Username,
		"email":     f.Email,
		"home_page": f.HomePage,
		"text":      f.Text,
	}
}

func (f CommentForm) normalized() CommentForm {
	return CommentForm{
		Username: strings.TrimSpace(f.Username),
		Email:    strings.TrimSpace(f.Email),
		HomePage: strings.TrimSpace(f.HomePage),
		Captcha:  strings.TrimSpace(f.Captcha),
		Text:     strings.TrimSpace(f.Text),
	}
}

// ValidationError carries one message per rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid form data: " + strings.Join(names, ", ")
}

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{M}\p{N}_.@+\-]+$`)

// AllowedFileExtensions are the attachment types accepted from the file field.
var AllowedFileExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".png":  true,
	".txt":  true,
}

var errMalformedCanvas = errors.New("malformed canvas image")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notags", func(fl validator.FieldLevel) bool {
		return !utils.HasMarkup(fl.Field().String())
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min":
		return fmt.Sprintf("Ensure this value has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	case "email":
		return "Enter a valid email address."
	case "http_url":
		return "Enter a valid URL."
	case "notags":
		return "HTML tags are not allowed."
	}
	return "Enter a valid value."
}

// validateForm returns the per-field messages for f, empty when valid.
func validateForm(v *validator.Validate, f CommentForm) map[string]string {
	fields := map[string]string{}
	err := v.Struct(f)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if _, seen := fields[fe.Field()]; !seen {
				fields[fe.Field()] = fieldMessage(fe)
			}
		}
	}
	return fields
}

func fileExtension(fh *multipart.FileHeader) string {
	return strings.ToLower(filepath.Ext(fh.Filename))
}

// decodeCanvas extracts the image bytes from a data URL of the form
// "<metadata>,<base64>".
func decodeCanvas(dataURL string) ([]byte, error) {
	_, payload, found := strings.Cut(dataURL, ",")
	if !found {
		return nil, errMalformedCanvas
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCanvas, err)
	}
	if len(data) == 0 {
		return nil, errMalformedCanvas
	}
	return data, nil
}
