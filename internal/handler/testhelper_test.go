package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/stems/internal/client"
	"github.com/makeasinger/stems/internal/config"
	"github.com/makeasinger/stems/internal/model"
	"github.com/makeasinger/stems/internal/service"
	"github.com/makeasinger/stems/internal/store"
)

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	service *service.SeparationService
	audio   *audioServer
}

// audioServer serves /audio/*.wav; requests wait on gate when it is set
type audioServer struct {
	*httptest.Server
	gate chan struct{}
	open sync.Once
}

func newAudioServer(t *testing.T, gated bool) *audioServer {
	t.Helper()
	a := &audioServer{}
	if gated {
		a.gate = make(chan struct{})
	}
	a.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.gate != nil {
			<-a.gate
		}
		if !strings.HasPrefix(r.URL.Path, "/audio/") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("RIFF"))
	}))
	t.Cleanup(a.Close)
	return a
}

// setupApp wires the stems routes like main.go, with an in-memory store and
// no providers configured so jobs complete through the demo fallback.
func setupApp(t *testing.T, gated bool) *testApp {
	t.Helper()
	return setupAppWithStore(t, gated, store.NewMemoryStore())
}

// setupAppWithStore is setupApp over the given job store
func setupAppWithStore(t *testing.T, gated bool, jobStore store.JobStore) *testApp {
	t.Helper()

	audio := newAudioServer(t, gated)

	fetcher := client.NewFetchClient(&config.FetchConfig{Timeout: 5})
	svc := service.NewSeparationService(jobStore, service.NewProviderChain(), fetcher, service.SeparationOptions{
		SiteBaseURL: audio.URL,
	})
	stemsHandler := NewStemsHandler(svc, validator.New())

	app := fiber.New()
	app.Get("/health", Health(HealthInfo{StoreBackend: config.BackendMemory, QueueBackend: config.BackendMemory}))

	stems := app.Group("/api/stems")
	stems.Post("/separate", stemsHandler.Separate)
	stems.Get("/separate", stemsHandler.Status)

	return &testApp{app: app, service: svc, audio: audio}
}

// release unblocks gated audio downloads and waits for all jobs to finish
func (ta *testApp) release(t *testing.T) {
	t.Helper()
	if ta.audio.gate != nil {
		ta.audio.open.Do(func() { close(ta.audio.gate) })
	}
	ta.service.Launcher().(*service.GoroutineLauncher).Wait()
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	return result
}

// parseStatus decodes a status response.
func parseStatus(t *testing.T, resp *http.Response) model.SeparationStatusResponse {
	t.Helper()
	defer resp.Body.Close()

	var result model.SeparationStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	return result
}

// assertStatus checks the response status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
