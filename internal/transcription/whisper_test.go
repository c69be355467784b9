package transcription

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const whisperJSON = `{
  "text": " Hello world. Second line.",
  "language": "en",
  "segments": [
    {"id": 0, "start": 0.0, "end": 1.4, "text": " Hello world.",
     "words": [
       {"word": " Hello", "start": 0.0, "end": 0.6, "probability": 0.97},
       {"word": " world.", "start": 0.7, "end": 1.4, "probability": 0.88}
     ]},
    {"id": 1, "start": 1.5, "end": 3.25, "text": " Second line.", "words": []}
  ]
}`

func TestParseWhisperJSON(t *testing.T) {
	tr, err := parseWhisperJSON([]byte(whisperJSON))
	require.NoError(t, err)

	assert.Equal(t, "Hello world. Second line.", tr.Text)
	assert.Equal(t, "en", tr.Language)
	assert.Equal(t, 3.25, tr.Duration)
	require.Len(t, tr.Segments, 2)

	first := tr.Segments[0]
	assert.Equal(t, "Hello world.", first.Text)
	require.Len(t, first.Words, 2)
	assert.Equal(t, "Hello", first.Words[0].Word)
	assert.Equal(t, 0.97, first.Words[0].Confidence)
	assert.Equal(t, 0.7, first.Words[1].Start)

	assert.Nil(t, tr.Segments[1].Words)
}

func TestParseWhisperJSON_Invalid(t *testing.T) {
	_, err := parseWhisperJSON([]byte("not json"))
	assert.ErrorContains(t, err, "parse whisper JSON")
}

func TestResolveModelName(t *testing.T) {
	assert.Equal(t, "tiny", resolveModelName(""))
	assert.Equal(t, "small", resolveModelName("models/ggml-small.bin"))
	assert.Equal(t, "base", resolveModelName("base"))
	assert.Equal(t, "tiny", resolveModelName("whatever"))
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c\nd", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", lastLines("a", 5))
}

// fakePython writes a shell script that mimics `python -m whisper` by writing
// fixed JSON into --output_dir.
func fakePython(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestWhisperTranscriber_Transcribe(t *testing.T) {
	script := `audio="$3"
out=""
lang=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output_dir) out="$2" ;;
    --language) lang="$2" ;;
  esac
  shift
done
base=$(basename "$audio")
base="${base%.*}"
[ "$lang" = "de" ] || { echo "unexpected language $lang" >&2; exit 2; }
cat > "$out/$base.json" <<'JSON'
` + whisperJSON + `
JSON
`
	python := fakePython(t, script)

	audio := filepath.Join(t.TempDir(), "upload-123.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0644))

	wt := NewWhisperTranscriber(python, "small", "", 2, zerolog.Nop())
	assert.Equal(t, "whisper-cli:small", wt.Name())

	tr, err := wt.Transcribe(context.Background(), audio, "de")
	require.NoError(t, err)
	assert.Equal(t, "Hello world. Second line.", tr.Text)
	assert.Len(t, tr.Segments, 2)
}

func TestWhisperTranscriber_Failure(t *testing.T) {
	python := fakePython(t, "echo 'RuntimeError: failed to load audio' >&2\nexit 1\n")

	audio := filepath.Join(t.TempDir(), "broken.ogg")
	require.NoError(t, os.WriteFile(audio, []byte("junk"), 0644))

	wt := NewWhisperTranscriber(python, "tiny", "cpu", 0, zerolog.Nop())
	_, err := wt.Transcribe(context.Background(), audio, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load audio")
}

func TestValidateAudioFormat(t *testing.T) {
	for _, name := range []string{"a.mp3", "b.WAV", "c.m4a", "d.flac", "e.opus", "f.webm"} {
		assert.True(t, ValidateAudioFormat(name), name)
	}
	for _, name := range []string{"notes.txt", "noext", "image.png", "clip.wav.exe"} {
		assert.False(t, ValidateAudioFormat(name), name)
	}
}

func TestNormalizingEngine_FFmpegMissing(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("ID3"), 0644))

	inner := &recordingEngine{}
	n := NewNormalizingEngine(inner, t.TempDir())
	n.ffmpeg = filepath.Join(t.TempDir(), "no-such-ffmpeg")

	_, err := n.Transcribe(context.Background(), audio, "en")
	assert.ErrorContains(t, err, "ffmpeg failed")
	assert.Empty(t, inner.paths, "inner engine must not run when normalization fails")
	assert.Equal(t, "recording+ffmpeg", n.Name())
}
