package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chat-engine/internal/models"
)

// File is one upload as received from the client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader stores media and returns its descriptor.
type Uploader interface {
	Upload(ctx context.Context, file File, folder string) (models.Attachment, error)
}

// LocalStore writes objects under a directory served at BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Upload(ctx context.Context, file File, folder string) (models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return models.Attachment{}, err
	}
	id := uuid.NewString()
	object := id + strings.ToLower(filepath.Ext(file.Name))

	dir := filepath.Join(s.Dir, filepath.Clean("/"+folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.Attachment{}, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, object), file.Data, 0o644); err != nil {
		return models.Attachment{}, fmt.Errorf("write object: %w", err)
	}

	return models.Attachment{
		ID:          id,
		URL:         s.BaseURL + path.Join("/", folder, object),
		Kind:        KindOf(file.ContentType),
		Size:        int64(len(file.Data)),
		Name:        file.Name,
		ContentType: file.ContentType,
	}, nil
}

// KindOf maps a content type to the attachment kind shown by clients.
func KindOf(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	default:
		return "file"
	}
}
