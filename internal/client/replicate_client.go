package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/replicate/replicate-go"

	"github.com/makeasinger/stems/internal/config"
	"github.com/makeasinger/stems/internal/model"
	"github.com/makeasinger/stems/internal/poll"
)

// ReplicateClient runs a hosted demucs model on Replicate
type ReplicateClient struct {
	r8    *replicate.Client
	model string
	poll  poll.Policy
}

// PredictionStems is the demucs model output, one URL per stem
type PredictionStems struct {
	Vocals string `json:"vocals"`
	Drums  string `json:"drums"`
	Bass   string `json:"bass"`
	Other  string `json:"other"`
}

// NewReplicateClient creates a new Replicate API client; it stays unconfigured without a token
func NewReplicateClient(cfg *config.ReplicateConfig) *ReplicateClient {
	c := &ReplicateClient{
		model: cfg.Model,
		poll: poll.Policy{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollAttempts,
		},
	}
	if cfg.APIToken == "" {
		return c
	}

	r8, err := replicate.NewClient(
		replicate.WithToken(cfg.APIToken),
		replicate.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		replicate.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
	)
	if err != nil {
		log.Printf("[Replicate] Client not initialized: %v", err)
		return c
	}
	c.r8 = r8
	return c
}

// Name returns the provider name recorded on jobs
func (c *ReplicateClient) Name() string {
	return model.ProviderReplicate
}

// Separate runs the model against the resolved source URL; the audio bytes are not re-uploaded
func (c *ReplicateClient) Separate(ctx context.Context, in model.SeparationInput) (model.StemSet, error) {
	log.Printf("[Replicate] Sending to Replicate: %s", in.SourceURL)

	out, err := c.Run(ctx, replicate.PredictionInput{"audio": in.SourceURL})
	if err != nil {
		return nil, err
	}

	urls := map[model.StemType]string{
		model.StemVocals: out.Vocals,
		model.StemDrums:  out.Drums,
		model.StemBass:   out.Bass,
		model.StemOther:  out.Other,
	}

	stems := make(model.StemSet, len(urls))
	for _, stemType := range model.StemTypes {
		stems[stemType] = model.SeparatedStem{
			URL:        urls[stemType],
			Duration:   model.PlaceholderDuration,
			SampleRate: model.PlaceholderSampleRate,
			Energy:     model.DefaultEnergy(stemType),
		}
	}

	return stems, nil
}

// Run creates a prediction for the configured model and polls it until it finishes
func (c *ReplicateClient) Run(ctx context.Context, input replicate.PredictionInput) (*PredictionStems, error) {
	if c.r8 == nil {
		return nil, fmt.Errorf("replicate client not configured")
	}

	version, err := c.modelVersion()
	if err != nil {
		return nil, err
	}

	prediction, err := c.r8.CreatePrediction(ctx, version, input, nil, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction: %w", describeAPIError(err))
	}

	if !prediction.Status.Terminated() {
		id := prediction.ID
		err = c.poll.Until(ctx, func(ctx context.Context, attempt int) (bool, error) {
			p, err := c.r8.GetPrediction(ctx, id)
			if err != nil {
				return false, fmt.Errorf("failed to get prediction: %w", describeAPIError(err))
			}

			log.Printf("[Replicate] Poll #%d (prediction=%s) — status: %s", attempt, id, p.Status)

			prediction = p
			return p.Status.Terminated(), nil
		})
		if err != nil {
			if errors.Is(err, poll.ErrExhausted) {
				return nil, fmt.Errorf("prediction %s timed out: %w", id, err)
			}
			return nil, err
		}
	}

	return predictionStems(prediction)
}

// predictionStems reads the stem URLs from a finished prediction
func predictionStems(p *replicate.Prediction) (*PredictionStems, error) {
	if p.Status != replicate.Succeeded {
		return nil, fmt.Errorf("prediction %s %s: %v", p.ID, p.Status, p.Error)
	}
	if p.Output == nil {
		return nil, fmt.Errorf("prediction %s succeeded without output", p.ID)
	}

	raw, err := json.Marshal(p.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to read prediction output: %w", err)
	}
	var stems PredictionStems
	if err := json.Unmarshal(raw, &stems); err != nil {
		return nil, fmt.Errorf("unexpected prediction output: %w", err)
	}

	return &stems, nil
}

// modelVersion extracts the version hash from an owner/name:version identifier
func (c *ReplicateClient) modelVersion() (string, error) {
	id, err := replicate.ParseIdentifier(c.model)
	if err != nil || id.Version == nil || *id.Version == "" {
		return "", fmt.Errorf("replicate model %q has no version", c.model)
	}
	return *id.Version, nil
}

// describeAPIError keeps the HTTP status of API errors in the message
func describeAPIError(err error) error {
	var apiErr *replicate.APIError
	if errors.As(err, &apiErr) {
		log.Printf("[Replicate] ✗ API error: %v", apiErr)
		return fmt.Errorf("replicate API error (status %d): %s", apiErr.Status, apiErr.Detail)
	}
	return err
}

// IsConfigured returns true if the client has valid configuration
func (c *ReplicateClient) IsConfigured() bool {
	return c.r8 != nil
}
