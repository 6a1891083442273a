package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/stems/internal/config"
	"github.com/makeasinger/stems/internal/model"
)

func TestSpleeterClient_Separate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/split" {
			http.NotFound(w, r)
			return
		}
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "4", r.FormValue("stems"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "audio.wav", header.Filename)
		assert.Equal(t, "audio-bytes", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temp_dir":"tmp123"}`))
	}))
	defer srv.Close()

	c := NewSpleeterClient(&config.SpleeterConfig{URL: srv.URL + "/", Timeout: 5})
	require.True(t, c.IsConfigured())
	assert.Equal(t, model.ProviderSpleeter, c.Name())

	stems, err := c.Separate(context.Background(), model.SeparationInput{
		Audio:          []byte("audio-bytes"),
		SourceURL:      "http://site/audio/track%20one.wav",
		AudioReference: "/audio/track one.wav",
	})
	require.NoError(t, err)
	require.Len(t, stems, 4)

	assert.Equal(t, srv.URL+"/download/tmp123/track one/vocals", stems[model.StemVocals].URL)
	assert.Equal(t, srv.URL+"/download/tmp123/track one/drums", stems[model.StemDrums].URL)
	assert.Equal(t, srv.URL+"/download/tmp123/track one/bass", stems[model.StemBass].URL)
	assert.Equal(t, srv.URL+"/download/tmp123/track one/other", stems[model.StemOther].URL)
	assert.Equal(t, 0.9, stems[model.StemDrums].Energy)
	assert.Equal(t, model.PlaceholderSampleRate, stems[model.StemBass].SampleRate)
}

func TestSpleeterClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewSpleeterClient(&config.SpleeterConfig{URL: srv.URL, Timeout: 5})

	_, err := c.Separate(context.Background(), model.SeparationInput{Audio: []byte("x"), AudioReference: "/a.wav"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSpleeterClient_NotConfigured(t *testing.T) {
	c := NewSpleeterClient(&config.SpleeterConfig{})
	assert.False(t, c.IsConfigured())
}
