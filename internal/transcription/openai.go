package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// APIClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type APIClient struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

// APIResponse is the verbose_json response body.
type APIResponse struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Segments []APISegment `json:"segments"`
	Words    []APIWord    `json:"words"`
}

// APISegment is one segment of a verbose_json response.
type APISegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// APIWord is a word-level timestamp. Probability is only sent by some
// self-hosted servers and is zero otherwise.
type APIWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// NewAPIClient creates a new Whisper HTTP client.
func NewAPIClient(url, model, apiKey string, timeout time.Duration) *APIClient {
	return &APIClient{
		url:    url,
		model:  model,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) Name() string { return "whisper-api:" + c.model }

// Transcribe uploads the audio file and requests segment and word timestamps.
func (c *APIClient) Transcribe(ctx context.Context, audioPath, language string) (*types.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if c.model != "" {
		w.WriteField("model", c.model)
	}
	if language == "" {
		language = DefaultLanguage
	}
	w.WriteField("language", language)
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "segment")
	w.WriteField("timestamp_granularities[]", "word")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result APIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.transcript(), nil
}

// transcript converts the response, attaching each word to the segment whose
// time range contains the word's midpoint.
func (r *APIResponse) transcript() *types.Transcript {
	segments := make([]types.Segment, len(r.Segments))
	for i, seg := range r.Segments {
		segments[i] = types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
	}

	// Word-only responses get a single segment spanning the whole text
	if len(segments) == 0 && len(r.Words) > 0 {
		segments = append(segments, types.Segment{
			Start: r.Words[0].Start,
			End:   r.Words[len(r.Words)-1].End,
			Text:  strings.TrimSpace(r.Text),
		})
	}

	si := 0
	for _, w := range r.Words {
		mid := (w.Start + w.End) / 2
		for si < len(segments)-1 && mid >= segments[si].End {
			si++
		}
		if len(segments) == 0 {
			break
		}
		segments[si].Words = append(segments[si].Words, types.Word{
			Word:       strings.TrimSpace(w.Word),
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Probability,
		})
	}

	duration := r.Duration
	if duration == 0 {
		duration = lastEnd(segments)
	}
	return &types.Transcript{
		Text:     strings.TrimSpace(r.Text),
		Language: r.Language,
		Duration: duration,
		Segments: segments,
	}
}
