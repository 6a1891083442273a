package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/makeasinger/stems/internal/config"
	"github.com/makeasinger/stems/internal/model"
	"github.com/makeasinger/stems/internal/poll"
)

const lalalStatusSuccess = "success"

// lalalStems are the split targets requested for every upload
var lalalStems = []string{"vocals", "drum", "bass", "piano"}

// LalalClient implements the LALAL.AI upload/split/check protocol
type LalalClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	splitter   string
	poll       poll.Policy
}

type lalalUploadResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Error  string `json:"error,omitempty"`
}

type lalalSplitParam struct {
	ID       string `json:"id"`
	Stem     string `json:"stem"`
	Splitter string `json:"splitter"`
}

type lalalSplitResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type lalalCheckResponse struct {
	Status string                    `json:"status"`
	Error  string                    `json:"error,omitempty"`
	Result map[string]lalalFileState `json:"result"`
}

type lalalFileState struct {
	Task  *lalalTask  `json:"task"`
	Split *lalalSplit `json:"split"`
}

type lalalTask struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type lalalSplit struct {
	Duration  float64 `json:"duration"`
	StemTrack string  `json:"stem_track"`
	BackTrack string  `json:"back_track"`
}

// NewLalalClient creates a new LALAL.AI client
func NewLalalClient(cfg *config.LalalConfig) *LalalClient {
	return &LalalClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		splitter: cfg.Splitter,
		poll: poll.Policy{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollAttempts,
		},
	}
}

// Name returns the provider name recorded on jobs
func (c *LalalClient) Name() string {
	return model.ProviderLalal
}

// Separate uploads the audio, requests the split and waits for the result
func (c *LalalClient) Separate(ctx context.Context, in model.SeparationInput) (model.StemSet, error) {
	fileID, err := c.Upload(ctx, in.Audio)
	if err != nil {
		return nil, err
	}
	log.Printf("[LALAL] File uploaded: %s", fileID)

	taskID, err := c.Split(ctx, fileID)
	if err != nil {
		return nil, err
	}
	log.Printf("[LALAL] Separation started, task_id: %s", taskID)

	split, err := c.pollSplit(ctx, fileID)
	if err != nil {
		return nil, err
	}

	// The check result only carries the isolated track and its backing
	// track, so vocals, drums and bass all point at the isolated track.
	stems := make(model.StemSet, len(model.StemTypes))
	for _, stemType := range model.StemTypes {
		trackURL := split.StemTrack
		if stemType == model.StemOther {
			trackURL = split.BackTrack
		}
		stems[stemType] = model.SeparatedStem{
			URL:        trackURL,
			Duration:   split.Duration,
			SampleRate: model.PlaceholderSampleRate,
			Energy:     model.DefaultEnergy(stemType),
		}
	}

	return stems, nil
}

// Upload sends the raw audio and returns the LALAL file id
func (c *LalalClient) Upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Disposition", `attachment; filename="audio.wav"`)

	var result lalalUploadResponse
	if err := c.doRequest(req, &result); err != nil {
		return "", fmt.Errorf("LALAL.AI upload failed: %w", err)
	}
	if result.Status != lalalStatusSuccess {
		return "", fmt.Errorf("LALAL.AI upload failed: %s", errorOr(result.Error, result.Status))
	}
	if result.ID == "" {
		return "", fmt.Errorf("LALAL.AI upload failed: missing file id")
	}

	return result.ID, nil
}

// Split requests separation of the uploaded file into the four target stems
func (c *LalalClient) Split(ctx context.Context, fileID string) (string, error) {
	params := make([]lalalSplitParam, 0, len(lalalStems))
	for _, stem := range lalalStems {
		params = append(params, lalalSplitParam{ID: fileID, Stem: stem, Splitter: c.splitter})
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal split params: %w", err)
	}

	form := url.Values{}
	form.Set("params", string(paramsJSON))

	var result lalalSplitResponse
	if err := c.postForm(ctx, "/api/split/", form, &result); err != nil {
		return "", fmt.Errorf("LALAL.AI split failed: %w", err)
	}
	if result.Status != lalalStatusSuccess {
		return "", fmt.Errorf("LALAL.AI split failed: %s", errorOr(result.Error, result.Status))
	}

	return result.TaskID, nil
}

// check fetches the current processing state of a file
func (c *LalalClient) check(ctx context.Context, fileID string) (*lalalFileState, error) {
	form := url.Values{}
	form.Set("id", fileID)

	var result lalalCheckResponse
	if err := c.postForm(ctx, "/api/check/", form, &result); err != nil {
		return nil, err
	}
	if result.Status != lalalStatusSuccess {
		return nil, nil
	}

	state, ok := result.Result[fileID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// pollSplit checks the file on the configured interval until its split is ready
func (c *LalalClient) pollSplit(ctx context.Context, fileID string) (*lalalSplit, error) {
	var split *lalalSplit

	err := c.poll.Until(ctx, func(ctx context.Context, attempt int) (bool, error) {
		state, err := c.check(ctx, fileID)
		if err != nil {
			log.Printf("[LALAL] Poll #%d (file=%s) — error: %v", attempt, fileID, err)
			return false, err
		}
		if state == nil || state.Task == nil {
			log.Printf("[LALAL] Poll #%d (file=%s) — no task state yet", attempt, fileID)
			return false, nil
		}

		log.Printf("[LALAL] Poll #%d (file=%s) — state: %s", attempt, fileID, state.Task.State)

		switch state.Task.State {
		case lalalStatusSuccess:
			if state.Split == nil {
				return false, nil
			}
			split = state.Split
			return true, nil
		case "error":
			return false, fmt.Errorf("LALAL.AI task failed: %s", errorOr(state.Task.Error, "unknown error"))
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, poll.ErrExhausted) {
			return nil, fmt.Errorf("LALAL.AI processing timeout: %w", err)
		}
		return nil, err
	}

	return split, nil
}

// postForm sends a form-encoded POST request
func (c *LalalClient) postForm(ctx context.Context, endpoint string, form url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *LalalClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Authorization", "license "+c.apiKey)

	log.Printf("[LALAL] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[LALAL] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[LALAL] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("LALAL.AI API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *LalalClient) IsConfigured() bool {
	return c.apiKey != ""
}

func errorOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
