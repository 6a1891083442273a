package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/stems/internal/config"
	"github.com/makeasinger/stems/internal/model"
	"github.com/makeasinger/stems/internal/poll"
)

// fakeLalal serves the upload/split/check endpoints; the check endpoint
// reports success once readyAfter checks have been made.
type fakeLalal struct {
	t            *testing.T
	readyAfter   int32
	taskState    string
	uploadStatus string
	checks       atomic.Int32
}

func (f *fakeLalal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t := f.t
	assert.Equal(t, "license test-key", r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/api/upload/":
		assert.Equal(t, `attachment; filename="audio.wav"`, r.Header.Get("Content-Disposition"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "audio-bytes", string(body))
		status := f.uploadStatus
		if status == "" {
			status = "success"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "id": "file-1", "error": "quota exceeded"})

	case "/api/split/":
		assert.NoError(t, r.ParseForm())
		var params []lalalSplitParam
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("params")), &params))
		assert.Len(t, params, 4)
		stems := []string{}
		for _, p := range params {
			assert.Equal(t, "file-1", p.ID)
			assert.Equal(t, "phoenix", p.Splitter)
			stems = append(stems, p.Stem)
		}
		assert.Equal(t, []string{"vocals", "drum", "bass", "piano"}, stems)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "task_id": "task-1"})

	case "/api/check/":
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "file-1", r.PostForm.Get("id"))
		n := f.checks.Add(1)
		state := "progress"
		if f.taskState != "" {
			state = f.taskState
		} else if n >= f.readyAfter {
			state = "success"
		}
		file := map[string]interface{}{"task": map[string]string{"state": state, "error": "bad audio"}}
		if state == "success" {
			file["split"] = map[string]interface{}{
				"duration":   212.5,
				"stem_track": "https://cdn.lalal/stem.mp3",
				"back_track": "https://cdn.lalal/back.mp3",
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"result": map[string]interface{}{"file-1": file},
		})

	default:
		http.NotFound(w, r)
	}
}

func newTestLalalClient(url string, attempts int) *LalalClient {
	return NewLalalClient(&config.LalalConfig{
		APIKey:       "test-key",
		BaseURL:      url,
		Splitter:     "phoenix",
		PollInterval: time.Millisecond,
		PollAttempts: attempts,
		Timeout:      5,
	})
}

func TestLalalClient_Separate(t *testing.T) {
	fake := &fakeLalal{t: t, readyAfter: 3}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestLalalClient(srv.URL, 10)

	stems, err := c.Separate(context.Background(), model.SeparationInput{Audio: []byte("audio-bytes")})
	require.NoError(t, err)
	require.Len(t, stems, 4)

	assert.Equal(t, int32(3), fake.checks.Load())
	assert.Equal(t, "https://cdn.lalal/stem.mp3", stems[model.StemVocals].URL)
	assert.Equal(t, "https://cdn.lalal/stem.mp3", stems[model.StemDrums].URL)
	assert.Equal(t, "https://cdn.lalal/stem.mp3", stems[model.StemBass].URL)
	assert.Equal(t, "https://cdn.lalal/back.mp3", stems[model.StemOther].URL)
	assert.Equal(t, 212.5, stems[model.StemOther].Duration)
	assert.Equal(t, 0.8, stems[model.StemVocals].Energy)
}

func TestLalalClient_Timeout(t *testing.T) {
	fake := &fakeLalal{t: t, readyAfter: 1000}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestLalalClient(srv.URL, 4)

	_, err := c.Separate(context.Background(), model.SeparationInput{Audio: []byte("audio-bytes")})
	require.ErrorIs(t, err, poll.ErrExhausted)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, int32(4), fake.checks.Load())
}

func TestLalalClient_UploadRejected(t *testing.T) {
	fake := &fakeLalal{t: t, uploadStatus: "error"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestLalalClient(srv.URL, 4)

	_, err := c.Separate(context.Background(), model.SeparationInput{Audio: []byte("audio-bytes")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Zero(t, fake.checks.Load())
}

func TestLalalClient_TaskError(t *testing.T) {
	fake := &fakeLalal{t: t, taskState: "error"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestLalalClient(srv.URL, 10)

	_, err := c.Separate(context.Background(), model.SeparationInput{Audio: []byte("audio-bytes")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad audio")
	assert.Equal(t, int32(1), fake.checks.Load())
}
