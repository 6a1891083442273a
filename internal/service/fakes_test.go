package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/makeasinger/stems/internal/model"
)

type fakeSeparator struct {
	name   string
	stems  model.StemSet
	err    error
	panics bool
	block  bool // wait for ctx cancellation
	calls  atomic.Int32
}

func (f *fakeSeparator) Name() string { return f.name }

func (f *fakeSeparator) Separate(ctx context.Context, _ model.SeparationInput) (model.StemSet, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.panics {
		panic("separator exploded")
	}
	return f.stems, f.err
}

// urlStems returns a full stem set hosted under base
func urlStems(base string) model.StemSet {
	stems := make(model.StemSet)
	for _, stemType := range model.StemTypes {
		stems[stemType] = model.SeparatedStem{
			URL:        fmt.Sprintf("%s/%s.wav", base, stemType),
			Duration:   200,
			SampleRate: 48000,
			Energy:     model.DefaultEnergy(stemType),
		}
	}
	return stems
}

type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string][]byte
	gate    chan struct{} // when set, Fetch waits for it to close
	panics  bool
	fetched []string
}

func newFakeFetcher(bodies map[string][]byte) *fakeFetcher {
	return &fakeFetcher{bodies: bodies}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panics {
		panic("fetcher exploded")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)

	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("failed to download audio file: 404 Not Found - URL: %s", url)
	}
	return body, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeStorage) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return f.GetPublicURL(key), nil
}

func (f *fakeStorage) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

type fakeAssets struct {
	titles map[string]string
	err    error
}

func (f *fakeAssets) LookupTitle(_ context.Context, subjectID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.titles[subjectID], nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	progress  []int
	providers []string
	completed []string
	errors    []string
}

func (n *recordingNotifier) BroadcastProgress(_ string, progress int, _ model.JobStatus, provider string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, progress)
	n.providers = append(n.providers, provider)
}

func (n *recordingNotifier) BroadcastComplete(jobID string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, jobID)
}

func (n *recordingNotifier) BroadcastError(_ string, _ string, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

type failingLauncher struct{}

func (failingLauncher) Launch(context.Context, model.SeparationTask) error {
	return fmt.Errorf("queue unavailable")
}
