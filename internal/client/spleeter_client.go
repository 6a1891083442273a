package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/makeasinger/stems/internal/audiourl"
	"github.com/makeasinger/stems/internal/config"
	"github.com/makeasinger/stems/internal/model"
)

// spleeterStemCount is the only split mode the service is asked for
const spleeterStemCount = "4"

var spleeterStemPaths = map[model.StemType]string{
	model.StemVocals: "vocals",
	model.StemDrums:  "drums",
	model.StemBass:   "bass",
	model.StemOther:  "other",
}

// SpleeterClient talks to the self-hosted spleeter microservice
type SpleeterClient struct {
	httpClient *http.Client
	baseURL    string
}

// spleeterSplitResponse is the body returned by POST /split
type spleeterSplitResponse struct {
	TempDir string `json:"temp_dir"`
}

// NewSpleeterClient creates a new spleeter client
func NewSpleeterClient(cfg *config.SpleeterConfig) *SpleeterClient {
	return &SpleeterClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: strings.TrimRight(cfg.URL, "/"),
	}
}

// Name returns the provider name recorded on jobs
func (c *SpleeterClient) Name() string {
	return model.ProviderSpleeter
}

// Separate uploads the audio to /split and builds download URLs for the four stems
func (c *SpleeterClient) Separate(ctx context.Context, in model.SeparationInput) (model.StemSet, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(in.Audio); err != nil {
		return nil, fmt.Errorf("failed to write audio: %w", err)
	}
	if err := writer.WriteField("stems", spleeterStemCount); err != nil {
		return nil, fmt.Errorf("failed to write stems field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/split", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	log.Printf("[Spleeter] → POST %s (%d bytes)", req.URL.String(), len(in.Audio))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spleeter service unavailable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Spleeter] ← %d POST %s", resp.StatusCode, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("spleeter service unavailable (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result spleeterSplitResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.TempDir == "" {
		return nil, fmt.Errorf("spleeter response missing temp_dir")
	}

	name := audiourl.BaseName(in.AudioReference)
	stems := make(model.StemSet, len(spleeterStemPaths))
	for _, stemType := range model.StemTypes {
		stems[stemType] = model.SeparatedStem{
			URL:        fmt.Sprintf("%s/download/%s/%s/%s", c.baseURL, result.TempDir, name, spleeterStemPaths[stemType]),
			Duration:   model.PlaceholderDuration,
			SampleRate: model.PlaceholderSampleRate,
			Energy:     model.DefaultEnergy(stemType),
		}
	}

	return stems, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SpleeterClient) IsConfigured() bool {
	return c.baseURL != ""
}
