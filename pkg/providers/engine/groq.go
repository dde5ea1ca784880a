package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/transflow-engine/pkg/audio"
)

// GroqFactory adapts Groq's batch Whisper transcription endpoint to
// the streaming Factory/Session interface, grounded on the teacher's
// pkg/providers/stt/groq.go (same URL, multipart form, auth header
// and status handling), now wrapped around a growing PCM buffer
// instead of one fixed utterance.
type GroqFactory struct {
	apiKey string
	url    string
	model  string
	lang   string
}

// NewGroqFactory returns a Factory backed by Groq's whisper-large-v3
// family of models.
func NewGroqFactory(apiKey, model, lang string) *GroqFactory {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqFactory{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
		lang:   lang,
	}
}

func (f *GroqFactory) Name() string { return "groq" }

func (f *GroqFactory) NewSession(sampleRate int) (Session, error) {
	return newBatchSession(func(ctx context.Context, pcm []byte, lang string) (string, error) {
		return f.transcribe(ctx, pcm, sampleRate, lang)
	}, f.lang), nil
}

func (f *GroqFactory) transcribe(ctx context.Context, pcm []byte, sampleRate int, lang string) (string, error) {
	wavData := audio.NewWavBuffer(pcm, sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", f.model); err != nil {
		return "", err
	}
	if lang != "" {
		if err := writer.WriteField("language", lang); err != nil {
			return "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", f.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("groq stt error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}
