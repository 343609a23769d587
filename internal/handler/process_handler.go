package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/scalpel-app/scalpel/internal/archive"
	"github.com/scalpel-app/scalpel/internal/models"
	"github.com/scalpel-app/scalpel/internal/rename"
	"github.com/scalpel-app/scalpel/internal/service"
	"github.com/scalpel-app/scalpel/pkg/logger"
	"github.com/scalpel-app/scalpel/pkg/response"
)

type ProcessHandler struct {
	processSvc *service.ProcessService
	assembler  *archive.Assembler
}

func NewProcessHandler(processSvc *service.ProcessService, assembler *archive.Assembler) *ProcessHandler {
	return &ProcessHandler{processSvc: processSvc, assembler: assembler}
}

// Process handles POST /process-files. The multipart body carries an
// "options" JSON field and the file parts. On success the response streams
// the zip; entries are compressed as they are written, so the download
// starts before the archive is finished.
func (h *ProcessHandler) Process(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return response.Unauthorized(c, "authentication required")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return response.BadRequest(c, "multipart form data is required")
	}

	var opts rename.Options
	if raw := c.FormValue("options", ""); raw != "" {
		// Unknown fields are ignored; bad JSON is rejected rather than
		// silently treated as defaults.
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return response.BadRequest(c, "options must be valid JSON")
		}
	}

	headers := form.File["files"]
	sizes := make([]int64, len(headers))
	for i, fh := range headers {
		sizes[i] = fh.Size
	}
	if err := h.processSvc.CheckBatchShape(len(headers), sizes); err != nil {
		return h.rejection(c, err)
	}

	files := make([]*models.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		part, err := fh.Open()
		if err != nil {
			return response.InternalError(c, "failed to read upload")
		}
		content, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return response.InternalError(c, "failed to read upload")
		}
		files = append(files, &models.UploadedFile{
			OriginalName: fh.Filename,
			DeclaredKind: fh.Header.Get("Content-Type"),
			Content:      content,
		})
	}

	entries, err := h.processSvc.Prepare(userID, files, opts)
	if err != nil {
		return h.rejection(c, err)
	}

	RecordBatchProcessed(len(entries))

	downloadName := h.processSvc.DownloadName(opts, time.Now())
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+downloadName+`"`)

	assembler := h.assembler
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// A mid-stream failure leaves the client with a truncated archive;
		// the quota already charged stays charged.
		written, err := assembler.Write(w, entries)
		RecordArchiveBytes(written)
		if err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("Archive stream aborted")
			return
		}
		if err := w.Flush(); err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("Archive flush failed")
		}
	}))

	return nil
}

// rejection maps domain errors to status codes: validation failures are 400,
// exhausted quota is 403 with the exact remaining count.
func (h *ProcessHandler) rejection(c *fiber.Ctx, err error) error {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		RecordBatchRejected("validation")
		return response.BadRequest(c, verr.Error())
	}

	var qerr *service.QuotaError
	if errors.As(err, &qerr) {
		RecordBatchRejected("quota")
		return response.Error(c, fiber.StatusForbidden,
			fmt.Sprintf("%s (remaining: %d)", qerr.Error(), qerr.Remaining))
	}

	logger.Error().Err(err).Msg("Batch processing failed")
	return response.InternalError(c, "processing failed")
}
