package handlers

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/whisper-jobs/internal/jobs"
)

// StatusHandler answers job status polls
type StatusHandler struct {
	jobs JobService
	log  zerolog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(svc JobService, log zerolog.Logger) *StatusHandler {
	return &StatusHandler{jobs: svc, log: log}
}

// Handle processes GET /status/:key
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	key, err := url.PathUnescape(c.Params("key"))
	if err != nil || key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid job key."})
	}

	job, err := h.jobs.Status(c.UserContext(), key)
	if errors.Is(err, jobs.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found."})
	}
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("status lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(job)
}
