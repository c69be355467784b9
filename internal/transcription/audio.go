package transcription

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// NormalizingEngine converts input audio to 16kHz mono WAV with ffmpeg
// before handing it to the wrapped engine.
type NormalizingEngine struct {
	next    Engine
	tempDir string
	ffmpeg  string
}

// NewNormalizingEngine wraps next. Intermediate files are written to tempDir.
func NewNormalizingEngine(next Engine, tempDir string) *NormalizingEngine {
	return &NormalizingEngine{next: next, tempDir: tempDir, ffmpeg: "ffmpeg"}
}

func (n *NormalizingEngine) Name() string { return n.next.Name() + "+ffmpeg" }

func (n *NormalizingEngine) Transcribe(ctx context.Context, audioPath, language string) (*types.Transcript, error) {
	normalized, err := NormalizeAudio(ctx, n.ffmpeg, audioPath, n.tempDir)
	if err != nil {
		return nil, err
	}
	defer os.Remove(normalized)
	return n.next.Transcribe(ctx, normalized, language)
}

// NormalizeAudio converts any audio file to 16kHz mono WAV format
func NormalizeAudio(ctx context.Context, ffmpeg, inputPath, outDir string) (string, error) {
	outputPath := filepath.Join(outDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-i", inputPath,
		"-ar", "16000",      // 16kHz sample rate
		"-ac", "1",          // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(lastLines(string(output), 5)))
	}

	return outputPath, nil
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma", ".mp4", ".opus"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
