package ai

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultWhisperModel    = "whisper-1"
	DefaultLanguageHint    = "de"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	transcriptionFieldFile = "file"
)

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileName, languageHint string) (string, error)
}

// WhisperTranscriber calls an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperTranscriber struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewWhisperTranscriber builds a transcriber. An empty baseURL targets OpenAI.
func NewWhisperTranscriber(baseURL, apiKey, model string, opts ...ClientOption) *WhisperTranscriber {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultWhisperModel
	}
	t := &WhisperTranscriber{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	if o := applyClientOptions(opts); o.httpClient != nil {
		t.httpClient = o.httpClient
	}
	return t
}

// Transcribe uploads the audio and returns the recognized text.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, fileName, languageHint string) (string, error) {
	if len(audio) == 0 {
		return "", serviceError("transcribe", fmt.Errorf("empty audio"))
	}
	if fileName == "" {
		fileName = "audio.wav"
	}
	if languageHint == "" {
		languageHint = DefaultLanguageHint
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, transcriptionFieldFile, fileName))
	header.Set("Content-Type", "audio/wav")
	fw, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", t.model)
	_ = mw.WriteField("language", languageHint)
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := do(t.httpClient, req, "whisper", &out); err != nil {
		return "", serviceError("transcribe", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", serviceError("transcribe", fmt.Errorf("empty transcript"))
	}
	return text, nil
}

// MockTranscriber returns a fixed placeholder transcript. Used for local
// development without a speech-to-text provider.
type MockTranscriber struct {
	Text string
}

func (m MockTranscriber) Transcribe(ctx context.Context, audio []byte, fileName, languageHint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", serviceError("transcribe", err)
	}
	if m.Text != "" {
		return m.Text, nil
	}
	return fmt.Sprintf("Mock transcript for %s (%d bytes, language %s).", fileName, len(audio), languageOrDefault(languageHint)), nil
}

func languageOrDefault(hint string) string {
	if hint == "" {
		return DefaultLanguageHint
	}
	return hint
}
