package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DeepgramFactory adapts Deepgram's /v1/listen batch endpoint,
// grounded on the teacher's pkg/providers/stt/deepgram.go.
type DeepgramFactory struct {
	apiKey string
	url    string
	lang   string
}

func NewDeepgramFactory(apiKey, lang string) *DeepgramFactory {
	return &DeepgramFactory{apiKey: apiKey, url: "https://api.deepgram.com/v1/listen", lang: lang}
}

func (f *DeepgramFactory) Name() string { return "deepgram" }

func (f *DeepgramFactory) NewSession(sampleRate int) (Session, error) {
	return newBatchSession(func(ctx context.Context, pcm []byte, lang string) (string, error) {
		return f.transcribe(ctx, pcm, sampleRate, lang)
	}, f.lang), nil
}

func (f *DeepgramFactory) transcribe(ctx context.Context, pcm []byte, sampleRate int, lang string) (string, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return "", err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", lang)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+f.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", sampleRate))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}
