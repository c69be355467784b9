package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// WhisperTranscriber wraps Python's OpenAI Whisper CLI for transcription
type WhisperTranscriber struct {
	modelName string
	python    string
	device    string
	threads   int
	log       zerolog.Logger
}

// NewWhisperTranscriber creates a new transcriber using Python Whisper.
// model may be a bare model name ("tiny") or a path containing one.
func NewWhisperTranscriber(python, model, device string, threads int, log zerolog.Logger) *WhisperTranscriber {
	if python == "" {
		python = "python"
	}
	if device == "" {
		device = "cpu"
	}
	modelName := resolveModelName(model)

	log.Info().
		Str("model", modelName).
		Str("device", device).
		Str("python", python).
		Msg("whisper CLI engine configured; availability is checked on first job")

	return &WhisperTranscriber{
		modelName: modelName,
		python:    python,
		device:    device,
		threads:   threads,
		log:       log,
	}
}

// resolveModelName extracts a model name from a path (e.g. "ggml-small.bin" -> "small")
func resolveModelName(model string) string {
	for _, name := range []string{"tiny", "base", "small", "medium", "large"} {
		if strings.Contains(model, name) {
			return name
		}
	}
	return "tiny"
}

func (wt *WhisperTranscriber) Name() string { return "whisper-cli:" + wt.modelName }

// Transcribe processes an audio file and returns the transcript
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath, language string) (*types.Transcript, error) {
	if language == "" {
		language = DefaultLanguage
	}

	outDir, err := os.MkdirTemp("", "whisper-out-*")
	if err != nil {
		return nil, fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	args := []string{"-m", "whisper",
		absAudioPath,
		"--model", wt.modelName,
		"--device", wt.device,
		"--output_dir", outDir,
		"--output_format", "json",
		"--language", language,
		"--word_timestamps", "True",
		"--fp16", "False", // fp16 is unsupported on CPU
		"--verbose", "False",
	}
	if wt.threads > 0 {
		args = append(args, "--threads", fmt.Sprintf("%d", wt.threads))
	}

	cmd := exec.CommandContext(ctx, wt.python, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w: %s", err, strings.TrimSpace(lastLines(string(output), 5)))
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonData, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}

	result, err := parseWhisperJSON(jsonData)
	if err != nil {
		return nil, err
	}

	wt.log.Debug().
		Int("segments", len(result.Segments)).
		Float64("duration", result.Duration).
		Msg("whisper CLI transcription finished")
	return result, nil
}

// WhisperOutput matches Python Whisper's JSON output format
type WhisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []WhisperSegment `json:"segments"`
}

// WhisperSegment represents a timestamped segment from Whisper
type WhisperSegment struct {
	ID    int           `json:"id"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []WhisperWord `json:"words"`
}

// WhisperWord is a word with timestamps and the model's probability for it.
type WhisperWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

func parseWhisperJSON(data []byte) (*types.Transcript, error) {
	var out WhisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse whisper JSON: %w", err)
	}

	segments := make([]types.Segment, len(out.Segments))
	for i, seg := range out.Segments {
		segments[i] = types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
			Words: convertWords(seg.Words),
		}
	}

	return &types.Transcript{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
		Duration: lastEnd(segments),
		Segments: segments,
	}, nil
}

func convertWords(in []WhisperWord) []types.Word {
	if len(in) == 0 {
		return nil
	}
	words := make([]types.Word, len(in))
	for i, w := range in {
		words[i] = types.Word{
			Word:       strings.TrimSpace(w.Word),
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Probability,
		}
	}
	return words
}

// lastEnd is the end time of the final segment, used as the audio duration
func lastEnd(segments []types.Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].End
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
