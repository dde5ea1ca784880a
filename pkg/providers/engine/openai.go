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

// OpenAIFactory adapts OpenAI's Whisper transcription endpoint,
// grounded on the teacher's pkg/providers/stt/openai.go.
type OpenAIFactory struct {
	apiKey string
	url    string
	model  string
	lang   string
}

func NewOpenAIFactory(apiKey, model, lang string) *OpenAIFactory {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIFactory{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/audio/transcriptions",
		model:  model,
		lang:   lang,
	}
}

func (f *OpenAIFactory) Name() string { return "openai" }

func (f *OpenAIFactory) NewSession(sampleRate int) (Session, error) {
	return newBatchSession(func(ctx context.Context, pcm []byte, lang string) (string, error) {
		return f.transcribe(ctx, pcm, sampleRate, lang)
	}, f.lang), nil
}

func (f *OpenAIFactory) transcribe(ctx context.Context, pcm []byte, sampleRate int, lang string) (string, error) {
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
	if _, err := part.Write(wavData); err != nil {
		return "", err
	}
	writer.Close()

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
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}
