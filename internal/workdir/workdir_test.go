package workdir

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	r, err := New("/tmp/docs")
	require.NoError(t, err)

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"relative", "pic.png", "/tmp/docs/pic.png"},
		{"nested relative", "img/pic.png", "/tmp/docs/img/pic.png"},
		{"parent traversal stays resolvable", "../pic.png", "/tmp/pic.png"},
		{"absolute passes through", "/var/data/pic.png", "/var/data/pic.png"},
		{"absolute is cleaned", "/var//data/./pic.png", "/var/data/pic.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.ref))
		})
	}
}

func TestSetChangesResolution(t *testing.T) {
	r, err := New("/tmp/a")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a/x.png", r.Resolve("x.png"))

	require.NoError(t, r.Set("/tmp/b"))
	assert.Equal(t, "/tmp/b", r.Dir())
	assert.Equal(t, "/tmp/b/x.png", r.Resolve("x.png"))
}

func TestAssetPathRoundTrip(t *testing.T) {
	p := "/tmp/docs/pic.png"
	url := AssetPath(p)
	assert.True(t, len(url) > len(AssetPrefix))

	got, err := ParseAssetPath(url)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestParseAssetPathRejects(t *testing.T) {
	relEncoded := AssetPrefix + base64.RawURLEncoding.EncodeToString([]byte("pic.png"))
	dirty := AssetPrefix + base64.RawURLEncoding.EncodeToString([]byte("/tmp/../etc/passwd"))

	tests := []struct {
		name string
		in   string
	}{
		{"empty id", AssetPrefix},
		{"no prefix", "/other/abc"},
		{"bad base64", AssetPrefix + "!!!"},
		{"relative target", relEncoded},
		{"unclean target", dirty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAssetPath(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestNewMakesAbsolute(t *testing.T) {
	r, err := New(".")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(r.Dir()))
}
