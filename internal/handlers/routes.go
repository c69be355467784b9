package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

// RouteOptions carries the limits shared by the submit paths.
type RouteOptions struct {
	MaxFileSizeMB int
	StrictFormats bool
}

// Register mounts the job endpoints on app.
func Register(app fiber.Router, svc JobService, opts RouteOptions, log zerolog.Logger) {
	transcribe := NewTranscribeHandler(svc, opts.MaxFileSizeMB, opts.StrictFormats, log)
	status := NewStatusHandler(svc, log)
	stream := NewStreamHandler(svc, opts.MaxFileSizeMB, log)

	app.Post("/transcribe/", transcribe.Handle)
	app.Get("/status/:key", status.Handle)
	app.Get("/ws/stream", websocket.New(stream.Handle))
}
