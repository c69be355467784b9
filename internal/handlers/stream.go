package handlers

import (
	"bytes"
	"context"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxStreamNameLen = 200

// StreamHandler accepts audio over a WebSocket and submits it as one job.
// Text frames set the filename, binary frames carry audio and the text frame
// "END" submits.
type StreamHandler struct {
	jobs     JobService
	maxBytes int
	log      zerolog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(svc JobService, maxSizeMB int, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		jobs:     svc,
		maxBytes: maxSizeMB * 1024 * 1024,
		log:      log,
	}
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer   bytes.Buffer
		filename string
		ended    bool
	)

	h.log.Debug().Str("remote", c.RemoteAddr().String()).Msg("websocket connection established")

	for !ended {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			h.log.Debug().Err(err).Msg("websocket read ended")
			break
		}

		switch messageType {
		case websocket.TextMessage:
			msg := string(message)
			if msg == "END" {
				ended = true
				continue
			}
			if len(msg) > 0 && len(msg) < maxStreamNameLen {
				filename = msg
			}
		case websocket.BinaryMessage:
			if buffer.Len()+len(message) > h.maxBytes {
				c.WriteJSON(map[string]any{"error": "Stream too large", "code": "ERR_FILE_TOO_LARGE"})
				return
			}
			buffer.Write(message)
		}
	}

	if !ended || buffer.Len() == 0 {
		h.log.Debug().Bool("ended", ended).Int("bytes", buffer.Len()).Msg("stream closed without audio to submit")
		return
	}

	if filename == "" {
		// Unnamed streams must not collide on filename in durable mode
		filename = "stream_" + uuid.New().String() + ".webm"
	}

	res, err := h.jobs.Submit(context.Background(), filename, &buffer)
	status, body := submitResponse(res, err)
	if err != nil {
		h.log.Warn().Err(err).Str("filename", filename).Int("status", status).Msg("stream submit failed")
	}
	body["status_code"] = status
	c.WriteJSON(body)
}
