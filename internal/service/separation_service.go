package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/makeasinger/stems/internal/audiourl"
	"github.com/makeasinger/stems/internal/client"
	"github.com/makeasinger/stems/internal/model"
	"github.com/makeasinger/stems/internal/store"
)

// ErrValidation is returned for requests missing required fields
var ErrValidation = errors.New("validation failed")

const (
	separationQueuedMessage = "Stem separation queued. This may take 2-5 minutes."
	unknownTitle            = "Unknown Track"
	titleLookupTimeout      = 3 * time.Second
	finalizeTimeout         = 10 * time.Second
	minFinalizeReserve      = 5 * time.Second
	maxFinalizeReserve      = 2 * time.Minute
	errorCodeFailed         = "SEPARATION_FAILED"
)

// Notifier receives job lifecycle events, e.g. the websocket hub
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, provider string)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID string, code, message string)
}

type noopNotifier struct{}

func (noopNotifier) BroadcastProgress(string, int, model.JobStatus, string) {}

func (noopNotifier) BroadcastComplete(string, interface{}) {}

func (noopNotifier) BroadcastError(string, string, string) {}

// SeparationOptions holds the optional collaborators of the service
type SeparationOptions struct {
	SiteBaseURL string
	JobTimeout  time.Duration
	Assets      client.AssetLookup   // title lookup; nil falls back to the file name
	Storage     client.ObjectStorage // stem mirroring; nil keeps provider URLs
	Notifier    Notifier             // nil disables push updates
}

// SeparationService owns the separation job lifecycle
type SeparationService struct {
	store    store.JobStore
	chain    *ProviderChain
	fetcher  client.BlobFetcher
	assets   client.AssetLookup
	storage  client.ObjectStorage
	notifier Notifier
	baseURL  string
	launcher Launcher

	// chainTimeout bounds the provider chain so a job can still finish with demo stems
	chainTimeout time.Duration
}

// NewSeparationService creates the service; jobs run in-process until SetLauncher is called
func NewSeparationService(jobStore store.JobStore, chain *ProviderChain, fetcher client.BlobFetcher, opts SeparationOptions) *SeparationService {
	s := &SeparationService{
		store:    jobStore,
		chain:    chain,
		fetcher:  fetcher,
		assets:   opts.Assets,
		storage:  opts.Storage,
		notifier: opts.Notifier,
		baseURL:  opts.SiteBaseURL,

		chainTimeout: ChainBudget(opts.JobTimeout),
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	s.launcher = NewGoroutineLauncher(s, opts.JobTimeout)
	return s
}

// ChainBudget returns how long the provider chain may run inside a job of the
// given timeout. The rest is kept for mirroring and finalizing. 0 means no limit.
func ChainBudget(jobTimeout time.Duration) time.Duration {
	if jobTimeout <= 0 {
		return 0
	}
	reserve := jobTimeout / 5
	if reserve < minFinalizeReserve {
		reserve = minFinalizeReserve
	}
	if reserve > maxFinalizeReserve {
		reserve = maxFinalizeReserve
	}
	if reserve >= jobTimeout {
		return jobTimeout / 2
	}
	return jobTimeout - reserve
}

// SetLauncher replaces the background launcher
func (s *SeparationService) SetLauncher(l Launcher) {
	s.launcher = l
}

// Launcher returns the active background launcher
func (s *SeparationService) Launcher() Launcher {
	return s.launcher
}

// Providers lists the configured separation backends
func (s *SeparationService) Providers() []string {
	return s.chain.Providers()
}

// Submit creates a PENDING job and hands it to the launcher.
// A subject with a job in flight gets *store.InFlightError.
func (s *SeparationService) Submit(ctx context.Context, req *model.SeparateRequest) (*model.SeparateResponse, error) {
	subjectID := strings.TrimSpace(req.SubjectID)
	audioRef := strings.TrimSpace(req.AudioReference)
	if subjectID == "" || audioRef == "" {
		return nil, fmt.Errorf("%w: subjectId and audioReference are required", ErrValidation)
	}

	title := s.resolveTitle(ctx, subjectID, audioRef)
	now := time.Now()

	job := &model.SeparationJob{
		ID:        newJobID(now),
		SubjectID: subjectID,
		Title:     title,
		Status:    model.JobStatusPending,
		Model:     model.SeparationModel,
		Progress:  0,
		Stems:     []model.StemResult{},
		CreatedAt: now,
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}

	log.Printf("[Stems] Job %s created for subject %s (%s)", job.ID, subjectID, title)

	task := model.SeparationTask{
		JobID:          job.ID,
		SubjectID:      subjectID,
		AudioReference: audioRef,
		Title:          title,
	}
	if err := s.launcher.Launch(ctx, task); err != nil {
		log.Printf("[Stems] Failed to launch job %s: %v", job.ID, err)
		s.fail(ctx, job.ID, fmt.Errorf("failed to start separation: %w", err))
	}

	return &model.SeparateResponse{
		Success: true,
		JobID:   job.ID,
		Status:  model.JobStatusPending,
		Message: separationQueuedMessage,
	}, nil
}

// GetStatus looks a job up by id, or the latest job for a subject when no id is given
func (s *SeparationService) GetStatus(ctx context.Context, jobID, subjectID string) (*model.SeparationJob, error) {
	jobID = strings.TrimSpace(jobID)
	subjectID = strings.TrimSpace(subjectID)

	switch {
	case jobID != "":
		return s.store.Get(ctx, jobID)
	case subjectID != "":
		return s.store.LatestBySubject(ctx, subjectID)
	default:
		return nil, fmt.Errorf("%w: jobId or subjectId is required", ErrValidation)
	}
}

// Run executes the separation pipeline for a PENDING job. Any error or panic
// marks the job FAILED with the error message and is returned to the caller.
func (s *SeparationService) Run(ctx context.Context, task model.SeparationTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
		if err != nil {
			s.fail(ctx, task.JobID, err)
		}
	}()

	return s.run(ctx, task)
}

func (s *SeparationService) run(ctx context.Context, task model.SeparationTask) error {
	// Step 1: start processing
	if err := s.updateProgress(ctx, task.JobID, 10, func(job *model.SeparationJob) {
		now := time.Now()
		job.Status = model.JobStatusProcessing
		job.StartedAt = &now
	}); err != nil {
		return err
	}

	// Step 2-3: resolve and download the source audio
	sourceURL := audiourl.Resolve(task.AudioReference, s.baseURL)
	log.Printf("[Stems] Job %s downloading %s", task.JobID, sourceURL)

	audio, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return err
	}

	if err := s.updateProgress(ctx, task.JobID, 30, nil); err != nil {
		return err
	}

	// Step 5: separate; the chain always ends with stems, demo at worst
	stems, provider := s.separate(ctx, model.SeparationInput{
		Audio:          audio,
		SourceURL:      sourceURL,
		AudioReference: task.AudioReference,
	})

	// a deadline reached inside the chain must not fail the job
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()
	}

	if err := s.updateProgress(ctx, task.JobID, 70, func(job *model.SeparationJob) {
		job.ProviderUsed = provider
	}); err != nil {
		return err
	}

	// Step 7-9: materialize stems and complete
	results := s.materialize(ctx, task, stems, provider)

	job, err := s.store.Update(ctx, task.JobID, func(job *model.SeparationJob) error {
		now := time.Now()
		title := job.Title
		if title == "" {
			title = unknownTitle
		}
		job.Stems = results
		job.Status = model.JobStatusCompleted
		job.SetProgress(100)
		job.CompletedAt = &now
		job.ProjectFolderName = fmt.Sprintf("%s - Stems", title)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	s.notifier.BroadcastComplete(job.ID, model.NewJobProjection(job))
	log.Printf("[Stems] Job %s completed with %s (%d stems)", job.ID, provider, len(results))
	return nil
}

func (s *SeparationService) separate(ctx context.Context, in model.SeparationInput) (model.StemSet, string) {
	if s.chainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.chainTimeout)
		defer cancel()
	}
	return s.chain.Separate(ctx, in)
}

// materialize builds results for the fixed stem types the chain returned.
// A stem without a URL plays the original audio reference, and empty
// metadata takes the model defaults.
func (s *SeparationService) materialize(ctx context.Context, task model.SeparationTask, stems model.StemSet, provider string) []model.StemResult {
	results := make([]model.StemResult, 0, len(model.StemTypes))

	for _, stemType := range model.StemTypes {
		stem, ok := stems[stemType]
		if !ok {
			continue
		}

		stemURL := stem.URL
		if stemURL == "" {
			stemURL = task.AudioReference
		} else if provider != model.ProviderDemo {
			stemURL = s.mirrorStem(ctx, task, stemType, stemURL)
		}

		result := model.StemResult{
			ID:              uuid.New().String(),
			StemType:        stemType,
			URL:             stemURL,
			DurationSeconds: stem.Duration,
			SampleRateHz:    stem.SampleRate,
			Energy:          stem.Energy,
		}
		if result.DurationSeconds <= 0 {
			result.DurationSeconds = model.DefaultStemDuration
		}
		if result.SampleRateHz <= 0 {
			result.SampleRateHz = model.DefaultStemSampleRate
		}
		if result.Energy <= 0 {
			result.Energy = model.DefaultStemEnergy
		}
		results = append(results, result)
	}

	return results
}

// mirrorStem copies a provider-hosted stem into object storage. On any failure
// the provider URL is kept.
func (s *SeparationService) mirrorStem(ctx context.Context, task model.SeparationTask, stemType model.StemType, stemURL string) string {
	if s.storage == nil || !audiourl.IsAbsolute(stemURL) {
		return stemURL
	}

	data, err := s.fetcher.Fetch(ctx, stemURL)
	if err != nil {
		log.Printf("[Stems] Job %s: keeping provider URL for %s, download failed: %v", task.JobID, stemType, err)
		return stemURL
	}

	key := client.StemKey(task.SubjectID, task.JobID, stemType)
	publicURL, err := s.storage.Upload(ctx, key, bytes.NewReader(data), "audio/wav")
	if err != nil {
		log.Printf("[Stems] Job %s: keeping provider URL for %s, upload failed: %v", task.JobID, stemType, err)
		return stemURL
	}

	return publicURL
}

// updateProgress raises the job's progress, applies mutate and notifies subscribers
func (s *SeparationService) updateProgress(ctx context.Context, jobID string, progress int, mutate func(job *model.SeparationJob)) error {
	job, err := s.store.Update(ctx, jobID, func(job *model.SeparationJob) error {
		if mutate != nil {
			mutate(job)
		}
		job.SetProgress(progress)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	s.notifier.BroadcastProgress(jobID, job.Progress, job.Status, job.ProviderUsed)
	return nil
}

// fail marks the job FAILED with cause's message; progress stays where it was
func (s *SeparationService) fail(ctx context.Context, jobID string, cause error) {
	// the job context may already be done, e.g. after a timeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	msg := cause.Error()
	_, err := s.store.Update(ctx, jobID, func(job *model.SeparationJob) error {
		now := time.Now()
		job.Status = model.JobStatusFailed
		job.Error = msg
		job.Stems = []model.StemResult{}
		job.CompletedAt = &now
		return nil
	})
	if err != nil {
		log.Printf("[Stems] Failed to mark job %s as failed: %v", jobID, err)
		return
	}

	s.notifier.BroadcastError(jobID, errorCodeFailed, msg)
	log.Printf("[Stems] Job %s failed: %s", jobID, msg)
}

// resolveTitle never fails: asset title, then file name, then a fixed fallback
func (s *SeparationService) resolveTitle(ctx context.Context, subjectID, audioRef string) string {
	if s.assets != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, titleLookupTimeout)
		title, err := s.assets.LookupTitle(lookupCtx, subjectID)
		cancel()

		switch {
		case err == nil && strings.TrimSpace(title) != "":
			return strings.TrimSpace(title)
		case err != nil && !errors.Is(err, client.ErrAssetNotFound):
			log.Printf("[Stems] Title lookup for %s failed: %v", subjectID, err)
		}
	}

	if name := audiourl.BaseName(audioRef); name != "" {
		return name
	}
	return unknownTitle
}

// newJobID returns ids like sep_1718035200000_k3j9x2m1q
func newJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return fmt.Sprintf("sep_%d_%s", now.UnixMilli(), suffix)
}
