package service

import (
	"fmt"
	"regexp"
	"time"

	"github.com/scalpel-app/scalpel/internal/archive"
	"github.com/scalpel-app/scalpel/internal/models"
	"github.com/scalpel-app/scalpel/internal/rename"
	"github.com/scalpel-app/scalpel/pkg/logger"
	"github.com/scalpel-app/scalpel/pkg/sanitize"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ProcessService turns an uploaded batch into renamed archive entries. It
// validates the batch, charges the quota, and applies the rename rule to
// each file in upload order.
type ProcessService struct {
	validator *UploadValidator
	quota     *QuotaService
}

func NewProcessService(validator *UploadValidator, quota *QuotaService) *ProcessService {
	return &ProcessService{validator: validator, quota: quota}
}

// CheckBatchShape exposes the fail-fast ceilings so handlers can reject a
// request from multipart metadata alone.
func (s *ProcessService) CheckBatchShape(count int, sizes []int64) error {
	return s.validator.CheckBatchShape(count, sizes)
}

// Prepare validates the files, reserves quota for the batch, and returns the
// renamed entries in upload order. Quota is charged on admission: once the
// reservation succeeds it is not rolled back, even if the download is later
// aborted mid-stream.
func (s *ProcessService) Prepare(userID string, files []*models.UploadedFile, opts rename.Options) ([]archive.Entry, error) {
	if err := s.validator.ValidateBatch(files); err != nil {
		return nil, err
	}

	if err := s.quota.Reserve(userID, len(files)); err != nil {
		return nil, err
	}

	entries := make([]archive.Entry, len(files))
	for i, f := range files {
		newName := rename.Apply(f.OriginalName, i, opts)
		entries[i] = archive.Entry{
			Name:    sanitize.EntryName(newName),
			Content: f.Content,
		}
	}

	logger.Info().
		Str("user_id", userID).
		Int("files", len(files)).
		Msg("Batch admitted for processing")

	return entries, nil
}

// DownloadName builds the archive filename offered to the client. Whitespace
// in the base collapses to underscores and a millisecond timestamp keeps
// repeated downloads distinct.
func (s *ProcessService) DownloadName(opts rename.Options, now time.Time) string {
	base := opts.BaseName
	if base == "" {
		base = "renamed"
	}
	base = whitespaceRun.ReplaceAllString(base, "_")
	return sanitize.ForHeader(fmt.Sprintf("%s_%d.zip", base, now.UnixMilli()))
}
