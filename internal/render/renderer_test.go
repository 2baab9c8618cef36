package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markdownd/internal/workdir"
)

func newTestRenderer(t *testing.T, dir string) (*Renderer, *workdir.Resolver) {
	t.Helper()
	resolver, err := workdir.New(dir)
	require.NoError(t, err)
	return New(Options{}, resolver), resolver
}

func TestRenderMarkdown(t *testing.T) {
	r, _ := newTestRenderer(t, "/tmp/docs")

	tests := []struct {
		name           string
		source         string
		wantContain    []string
		wantNotContain []string
	}{
		{
			name:        "basic markdown",
			source:      "# Hello\n\nThis is **bold**.",
			wantContain: []string{"<h1", "Hello", "<strong>bold</strong>"},
		},
		{
			name:        "gfm table",
			source:      "| A | B |\n|---|---|\n| 1 | 2 |",
			wantContain: []string{"<table", "<th>A</th>", "<td>1</td>"},
		},
		{
			name:        "strikethrough",
			source:      "~~gone~~",
			wantContain: []string{"<del>gone</del>"},
		},
		{
			name:        "task list",
			source:      "- [x] done\n- [ ] todo",
			wantContain: []string{"checkbox", "checked"},
		},
		{
			name:        "fenced code is highlighted with classes",
			source:      "```go\nfunc main() {}\n```",
			wantContain: []string{"<pre", "chroma", "func"},
		},
		{
			name:        "autolink",
			source:      "see https://example.com for details",
			wantContain: []string{"<a", "https://example.com"},
		},
		{
			name:        "heading anchors survive sanitization",
			source:      "# Some Title",
			wantContain: []string{`id="some-title"`},
		},
		{
			name:           "script tags are stripped",
			source:         "hi\n\n<script>alert(1)</script>\n\nbye",
			wantContain:    []string{"hi", "bye"},
			wantNotContain: []string{"<script", "alert(1)"},
		},
		{
			name:           "event handler attributes are stripped",
			source:         `<img src="x.png" onerror="alert(1)">`,
			wantNotContain: []string{"onerror"},
		},
		{
			name:           "javascript urls are stripped",
			source:         `[click](javascript:alert(1))`,
			wantContain:    []string{"click"},
			wantNotContain: []string{"javascript:"},
		},
		{
			name:        "malformed markdown still renders",
			source:      "```\nunclosed fence\n\n| broken | table\n[dangling link(",
			wantContain: []string{"<"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(context.Background(), []byte(tt.source))
			require.NoError(t, err)

			for _, want := range tt.wantContain {
				assert.Contains(t, got, want)
			}
			for _, notWant := range tt.wantNotContain {
				assert.NotContains(t, got, notWant)
			}
		})
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	r, _ := newTestRenderer(t, "/tmp/docs")
	source := []byte("# Title\n\n- [x] task\n\n```go\npackage main\n```\n\n![pic](img/pic.png)")

	first, err := r.Render(context.Background(), source)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := r.Render(context.Background(), source)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRenderEmptySnapshot(t *testing.T) {
	r, _ := newTestRenderer(t, "/tmp/docs")
	got, err := r.Render(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", strings.TrimSpace(got))
}

func TestImageRewrite(t *testing.T) {
	r, resolver := newTestRenderer(t, "/tmp/docs")

	t.Run("relative destination resolves against working directory", func(t *testing.T) {
		got, err := r.Render(context.Background(), []byte("![img](pic.png)"))
		require.NoError(t, err)
		assert.Contains(t, got, workdir.AssetPath("/tmp/docs/pic.png"))
	})

	t.Run("absolute destination is encoded as-is", func(t *testing.T) {
		got, err := r.Render(context.Background(), []byte("![img](/var/data/pic.png)"))
		require.NoError(t, err)
		assert.Contains(t, got, workdir.AssetPath("/var/data/pic.png"))
	})

	t.Run("remote destinations are untouched", func(t *testing.T) {
		got, err := r.Render(context.Background(), []byte("![img](https://example.com/pic.png)"))
		require.NoError(t, err)
		assert.Contains(t, got, "https://example.com/pic.png")
		assert.NotContains(t, got, workdir.AssetPrefix)
	})

	t.Run("chdir takes effect on the next render", func(t *testing.T) {
		require.NoError(t, resolver.Set("/srv/other"))
		got, err := r.Render(context.Background(), []byte("![img](pic.png)"))
		require.NoError(t, err)
		assert.Contains(t, got, workdir.AssetPath("/srv/other/pic.png"))
	})
}

func TestShell(t *testing.T) {
	shell := Shell([]string{"/css/custom/0", "https://example.com/style.css"})

	assert.Contains(t, shell, `href="/css/highlight.css"`)
	assert.Contains(t, shell, `href="/css/custom/0"`)
	assert.Contains(t, shell, `href="https://example.com/style.css"`)
	assert.Contains(t, shell, "WebSocket")
	assert.Contains(t, shell, "placeholder")
	assert.NotContains(t, shell, "{{CSS_LINKS}}")
}

func TestCSSHref(t *testing.T) {
	assert.Equal(t, "https://example.com/a.css", CSSHref("https://example.com/a.css", 0))
	assert.Equal(t, "/css/custom/1", CSSHref("/home/user/style.css", 1))
}

func TestHighlightCSS(t *testing.T) {
	css, err := HighlightCSS("github")
	require.NoError(t, err)
	assert.Contains(t, css, ".chroma")

	_, err = HighlightCSS("no-such-theme")
	assert.Error(t, err)
}

func TestValidTheme(t *testing.T) {
	assert.True(t, ValidTheme("github"))
	assert.True(t, ValidTheme("monokai"))
	assert.False(t, ValidTheme("definitely-not-a-theme"))
	assert.NotEmpty(t, ThemeNames())
}
