package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/whisper-jobs/internal/jobs"
	"github.com/codebuildervaibhav/whisper-jobs/internal/transcription"
	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// JobService is the part of the job manager the HTTP layer needs.
type JobService interface {
	Submit(ctx context.Context, filename string, content io.Reader) (*jobs.SubmitResult, error)
	Status(ctx context.Context, key string) (*types.Job, error)
}

// TranscribeHandler accepts audio uploads and queues them for transcription
type TranscribeHandler struct {
	jobs          JobService
	maxSizeMB     int
	strictFormats bool
	log           zerolog.Logger
}

// NewTranscribeHandler creates a new upload handler
func NewTranscribeHandler(svc JobService, maxSizeMB int, strictFormats bool, log zerolog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		jobs:          svc,
		maxSizeMB:     maxSizeMB,
		strictFormats: strictFormats,
		log:           log,
	}
}

// Handle processes POST /transcribe/
func (h *TranscribeHandler) Handle(c *fiber.Ctx) error {
	file, err := formFile(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if h.strictFormats && !transcription.ValidateAudioFormat(file.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	src, err := file.Open()
	if err != nil {
		h.log.Error().Err(err).Str("filename", file.Filename).Msg("failed to open upload")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to save file: %v", err),
		})
	}
	defer src.Close()

	res, err := h.jobs.Submit(c.UserContext(), file.Filename, src)
	status, body := submitResponse(res, err)
	if status >= fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("filename", file.Filename).Msg("submit failed")
	}
	return c.Status(status).JSON(body)
}

// formFile returns the uploaded file from the audio_file field, falling back to file
func formFile(c *fiber.Ctx) (*multipart.FileHeader, error) {
	file, err := c.FormFile("audio_file")
	if err == nil {
		return file, nil
	}
	return c.FormFile("file")
}

// submitResponse maps the outcome of a submit to a status code and JSON body
func submitResponse(res *jobs.SubmitResult, err error) (int, fiber.Map) {
	var dup *jobs.DuplicateError
	switch {
	case err == nil:
		return fiber.StatusAccepted, fiber.Map{
			"job_id":   res.JobID,
			"filename": res.Filename,
			"status":   string(types.StatusQueued),
			"message":  "Transcription has been queued. Check the status endpoint for results.",
		}
	case errors.As(err, &dup):
		return fiber.StatusConflict, fiber.Map{
			"error":  dup.Error(),
			"job_id": dup.JobID,
		}
	case errors.Is(err, jobs.ErrStaging):
		return fiber.StatusInternalServerError, fiber.Map{
			"error": fmt.Sprintf("Failed to save file: %v", err),
		}
	case errors.Is(err, jobs.ErrScheduling):
		return fiber.StatusServiceUnavailable, fiber.Map{
			"error": err.Error(),
		}
	default:
		return fiber.StatusInternalServerError, fiber.Map{
			"error": err.Error(),
		}
	}
}
