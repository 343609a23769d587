package service

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/scalpel-app/scalpel/internal/config"
	"github.com/scalpel-app/scalpel/internal/models"
	"github.com/scalpel-app/scalpel/pkg/sanitize"
)

// ValidationError rejects a whole batch. Batches are all-or-nothing: one bad
// file fails the request before any archive work starts.
type ValidationError struct {
	Reason   string
	FileName string
}

func (e *ValidationError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.FileName)
	}
	return e.Reason
}

// UploadValidator checks batch shape and file content against the configured
// policy. Content types come from sniffing the bytes; the client-declared
// type is never trusted.
type UploadValidator struct {
	maxFileSize  int64
	maxFiles     int
	allowedKinds []string
}

func NewUploadValidator(cfg *config.Config) *UploadValidator {
	return &UploadValidator{
		maxFileSize:  cfg.Upload.MaxFileSizeBytes,
		maxFiles:     cfg.Upload.MaxFilesPerUpload,
		allowedKinds: cfg.Upload.AllowedKinds,
	}
}

// CheckBatchShape enforces the count and per-file size ceilings using only
// multipart metadata, before any file content is read.
func (v *UploadValidator) CheckBatchShape(count int, sizes []int64) error {
	if count == 0 {
		return &ValidationError{Reason: "no files provided"}
	}
	if count > v.maxFiles {
		return &ValidationError{
			Reason: fmt.Sprintf("too many files: %d exceeds the limit of %d per batch", count, v.maxFiles),
		}
	}
	for i, size := range sizes {
		if size > v.maxFileSize {
			return &ValidationError{
				Reason:   fmt.Sprintf("file exceeds the %d byte limit", v.maxFileSize),
				FileName: fmt.Sprintf("file %d", i+1),
			}
		}
	}
	return nil
}

// ValidateBatch sniffs every file's content and checks it against the
// allow-list. The detected kind is recorded on each file. An unrecognized
// kind (application/octet-stream) passes: sniffing libraries cannot name
// every legitimate format, so unknown content is accepted rather than
// rejected.
func (v *UploadValidator) ValidateBatch(files []*models.UploadedFile) error {
	for _, f := range files {
		if int64(len(f.Content)) > v.maxFileSize {
			return &ValidationError{
				Reason:   fmt.Sprintf("file exceeds the %d byte limit", v.maxFileSize),
				FileName: sanitize.EntryName(f.OriginalName),
			}
		}

		detected := mimetype.Detect(f.Content)
		f.DetectedKind = detected.String()

		if f.DetectedKind == "application/octet-stream" {
			continue
		}
		if !v.kindAllowed(detected) {
			return &ValidationError{
				Reason:   fmt.Sprintf("unsupported file type %s", f.DetectedKind),
				FileName: sanitize.EntryName(f.OriginalName),
			}
		}
	}
	return nil
}

func (v *UploadValidator) kindAllowed(detected *mimetype.MIME) bool {
	for _, allowed := range v.allowedKinds {
		// Is matches registered aliases as well as the canonical name.
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}
