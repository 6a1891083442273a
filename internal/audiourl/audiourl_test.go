package audiourl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		base string
		want string
	}{
		{"relative with space", "/a/b c.wav", "https://x", "https://x/a/b%20c.wav"},
		{"absolute untouched", "https://cdn/y.wav", "https://x", "https://cdn/y.wav"},
		{"absolute http untouched", "http://cdn/raw path.wav", "https://x", "http://cdn/raw path.wav"},
		{"already encoded not doubled", "/a/b%20c.wav", "https://x", "https://x/a/b%20c.wav"},
		{"malformed escape encoded raw", "/a/100%zz.wav", "https://x", "https://x/a/100%25zz.wav"},
		{"trailing slash on base", "/audio/track one.wav", "http://localhost:3001/", "http://localhost:3001/audio/track%20one.wav"},
		{"query preserved", "/a/b c.wav?v=1", "https://x", "https://x/a/b%20c.wav?v=1"},
		{"reserved chars encoded", "/a/b&c#.wav", "https://x", "https://x/a/b%26c#.wav"},
		{"unicode", "/a/şarkı.mp3", "https://x", "https://x/a/%C5%9Fark%C4%B1.mp3"},
		{"parent segment collapsed", "/a/../b c.wav", "https://x", "https://x/b%20c.wav"},
		{"current segment dropped", "/a/./b.wav", "https://x", "https://x/a/b.wav"},
		{"parent above root", "/../../a.wav", "https://x", "https://x/a.wav"},
		{"trailing parent keeps slash", "/a/b/..", "https://x", "https://x/a/"},
		{"dots inside names kept", "/a/..b/c..wav", "https://x", "https://x/a/..b/c..wav"},
		{"not site relative", "audio/x.wav", "https://x", "audio/x.wav"},
		{"base without scheme", "/a/b c.wav", "localhost", "localhost/a/b c.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.ref, tt.base))
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	once := Resolve("/audio/my song (live).wav", "https://x")
	path := once[len("https://x"):]
	assert.Equal(t, once, Resolve(path, "https://x"))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "track one", BaseName("/audio/track one.wav"))
	assert.Equal(t, "y", BaseName("https://cdn.example.com/u/y.mp3?sig=abc"))
	assert.Equal(t, "archive.tar", BaseName("/files/archive.tar.gz"))
	assert.Equal(t, "noext", BaseName("/files/noext"))
	assert.Equal(t, "", BaseName("/"))
}
