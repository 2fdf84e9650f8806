// Package storage keeps comment attachments under the comment_files/
// namespace, on local disk or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Namespace is the prefix every attachment name lives under.
const Namespace = "comment_files"

var ErrInvalidName = errors.New("invalid attachment name")

type Storage interface {
	// Save writes r under name, replacing any existing content.
	Save(ctx context.Context, name string, r io.Reader) error
	Delete(ctx context.Context, name string) error
	// URL is the public address of a stored name.
	URL(name string) string
}

// NewName returns a fresh attachment name with the given extension, e.g.
// comment_files/2f1c...e9.png.
func NewName(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(Namespace, uuid.NewString()+ext)
}

// cleanName rejects names that would escape the namespace.
func cleanName(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") {
		return "", ErrInvalidName
	}
	cleaned := path.Clean("/" + name)[1:]
	if cleaned != name || !strings.HasPrefix(cleaned, Namespace+"/") {
		return "", ErrInvalidName
	}
	return cleaned, nil
}

func joinURL(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + name
}
