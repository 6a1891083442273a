package service

import (
	"context"
	"fmt"
	"log"

	"github.com/makeasinger/stems/internal/model"
)

// Separator is one separation backend in the fallback chain
type Separator interface {
	Name() string
	Separate(ctx context.Context, in model.SeparationInput) (model.StemSet, error)
}

// demoEnvHints lists the settings that enable a real backend
const demoEnvHints = "SPLEETER_URL (or PYTHON_WORKER_URL), LALAL_API_KEY, REPLICATE_API_TOKEN"

// ProviderChain tries separators in priority order and falls back to demo stems.
// A failing backend never fails the job; the demo tier always succeeds.
type ProviderChain struct {
	separators []Separator
}

// NewProviderChain builds a chain from separators in priority order
func NewProviderChain(separators ...Separator) *ProviderChain {
	return &ProviderChain{separators: separators}
}

// Providers returns the configured backend names in priority order
func (c *ProviderChain) Providers() []string {
	names := make([]string, 0, len(c.separators))
	for _, s := range c.separators {
		names = append(names, s.Name())
	}
	return names
}

// Separate returns the stems from the first backend that succeeds and its name
func (c *ProviderChain) Separate(ctx context.Context, in model.SeparationInput) (model.StemSet, string) {
	for _, s := range c.separators {
		if err := ctx.Err(); err != nil {
			log.Printf("[Stems] Skipping remaining providers: %v", err)
			break
		}

		stems, err := trySeparate(ctx, s, in)
		if err != nil {
			log.Printf("[Stems] %s failed, trying next provider: %v", s.Name(), err)
			continue
		}
		if len(stems) == 0 {
			log.Printf("[Stems] %s returned no stems, trying next provider", s.Name())
			continue
		}

		log.Printf("[Stems] Separated with %s (%d stems)", s.Name(), len(stems))
		return stems, s.Name()
	}

	log.Printf("[Stems] No separation provider succeeded, using demo stems. Configure %s for real separation.", demoEnvHints)
	return demoStems(), model.ProviderDemo
}

// trySeparate runs one backend, turning a panic into an error
func trySeparate(ctx context.Context, s Separator, in model.SeparationInput) (stems model.StemSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Separate(ctx, in)
}

// demoStems carries metadata only; the orchestrator fills in the source audio as each URL
func demoStems() model.StemSet {
	stems := make(model.StemSet, len(model.StemTypes))
	for _, stemType := range model.StemTypes {
		stems[stemType] = model.SeparatedStem{
			Duration:   model.PlaceholderDuration,
			SampleRate: model.PlaceholderSampleRate,
			Energy:     model.DefaultEnergy(stemType),
		}
	}
	return stems
}
