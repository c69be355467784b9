package transcription

import (
	"context"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// DefaultLanguage is the language hint passed to the engine when none is configured.
const DefaultLanguage = "en"

// Engine turns an audio file on disk into a timestamped transcript.
// Implementations block for the full duration of inference.
type Engine interface {
	Transcribe(ctx context.Context, audioPath, language string) (*types.Transcript, error)
	Name() string
}
