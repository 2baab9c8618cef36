package render

import (
	"bytes"
	"fmt"
	"sort"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/styles"
)

// ValidTheme reports whether name is a registered chroma highlight style.
func ValidTheme(name string) bool {
	_, ok := styles.Registry[name]
	return ok
}

// ThemeNames returns all registered highlight style names, sorted.
func ThemeNames() []string {
	names := make([]string, 0, len(styles.Registry))
	for name := range styles.Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HighlightCSS generates the stylesheet for the given highlight theme. Code
// blocks are rendered with chroma classes, so the browser needs this CSS to
// show any colors at all.
func HighlightCSS(theme string) (string, error) {
	style, ok := styles.Registry[theme]
	if !ok {
		return "", fmt.Errorf("unknown highlight theme %q", theme)
	}

	formatter := chromahtml.New(chromahtml.WithClasses(true))
	var buf bytes.Buffer
	if err := formatter.WriteCSS(&buf, style); err != nil {
		return "", fmt.Errorf("generate css for theme %q: %w", theme, err)
	}
	return buf.String(), nil
}
