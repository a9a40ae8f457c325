package annotations

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/shelfmark/shelfmark/pkg/config"
	"github.com/shelfmark/shelfmark/pkg/errcodes"
)

// allowedAttachmentTypes are the content types devices upload for markup
// annotations: raster snapshots and the vector stroke data.
var allowedAttachmentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/svg+xml",
}

// AttachmentStore persists annotation attachments on disk, organized per
// user and book so deleting a book's directory removes its markup too.
type AttachmentStore struct {
	dataDir string
}

func NewAttachmentStore(cfg *config.Config) *AttachmentStore {
	return &AttachmentStore{dataDir: cfg.DataDir}
}

func (s *AttachmentStore) dir(userID int, bookUUID string) string {
	return filepath.Join(s.dataDir, "annotation_attachments", strconv.Itoa(userID), bookUUID)
}

// Save validates the upload by sniffing its actual content and writes it
// under the user/book directory. The filename is flattened to its base so
// device input can't escape the directory.
func (s *AttachmentStore) Save(userID int, bookUUID, filename string, data []byte) (string, error) {
	detected := mimetype.Detect(data)
	allowed := false
	for _, t := range allowedAttachmentTypes {
		if detected.Is(t) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", errcodes.UnsupportedMediaType()
	}

	dir := s.dir(userID, bookUUID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WithStack(err)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", errors.WithStack(err)
	}

	return path, nil
}

// Resolve returns the on-disk path and sniffed content type of a stored
// attachment.
func (s *AttachmentStore) Resolve(userID int, bookUUID, filename string) (string, string, error) {
	path := filepath.Join(s.dir(userID, bookUUID), filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", "", errcodes.NotFound("Attachment")
		}
		return "", "", errors.WithStack(err)
	}

	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", errors.WithStack(err)
	}

	return path, detected.String(), nil
}
