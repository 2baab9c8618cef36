// Package render converts document snapshots into sanitized HTML fragments.
package render

import (
	"bytes"
	_ "embed"
	"context"
	"fmt"
	"strings"
	"time"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"
	"go.abhg.dev/goldmark/mermaid"

	"markdownd/internal/workdir"
)

// DefaultExternalTimeout bounds a single external renderer invocation.
const DefaultExternalTimeout = 5 * time.Second

// Options configures a Renderer. All fields are fixed for the lifetime of the
// renderer; only the working directory behind the resolver changes at runtime.
type Options struct {
	// ExternalCommand, when non-empty, replaces the builtin Markdown pipeline:
	// the snapshot is piped to argv's stdin and stdout is taken as the HTML
	// fragment verbatim.
	ExternalCommand []string

	// ExternalTimeout bounds one external invocation. Zero means
	// DefaultExternalTimeout.
	ExternalTimeout time.Duration
}

// Renderer is a wrapper around the goldmark Markdown parser with
// pre-configured extensions, followed by an HTML sanitization pass. Rendering
// is a pure function of (snapshot, configuration, current working directory);
// no state leaks between calls.
type Renderer struct {
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	resolver *workdir.Resolver
	opts     Options
}

func New(opts Options, resolver *workdir.Resolver) *Renderer {
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = DefaultExternalTimeout
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.NewAlertCallouts(
				alertcallouts.UseGFMStrictIcons(),
				alertcallouts.WithFolding(true),
			),
			// The page shell loads mermaid itself; the sanitizer would strip
			// an injected script tag anyway.
			&mermaid.Extender{NoScript: true},
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		// Raw HTML passes through the parser and is stripped down again by
		// the bluemonday policy below.
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	return &Renderer{
		md:       md,
		policy:   newPolicy(),
		resolver: resolver,
		opts:     opts,
	}
}

// Render converts one snapshot into an HTML fragment. With an external
// command configured the builtin pipeline is bypassed entirely.
func (r *Renderer) Render(ctx context.Context, snapshot []byte) (string, error) {
	if len(r.opts.ExternalCommand) > 0 {
		return r.renderExternal(ctx, snapshot)
	}
	return r.convertFragment(snapshot)
}

// convertFragment parses the snapshot, rewrites local image destinations to
// the asset path scheme, renders HTML, and sanitizes the result.
func (r *Renderer) convertFragment(snapshot []byte) (string, error) {
	doc := r.md.Parser().Parse(text.NewReader(snapshot))
	r.rewriteImages(doc)

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, snapshot, doc); err != nil {
		return "", err
	}

	return r.policy.Sanitize(buf.String()), nil
}

// rewriteImages walks the AST and points local image destinations at the
// asset endpoint. Relative destinations resolve against the working directory
// active at render time, so a chdir takes effect on the next render.
func (r *Renderer) rewriteImages(doc ast.Node) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}

		rawDest := strings.TrimSpace(string(img.Destination))
		if rawDest == "" || isRemoteDestination(rawDest) {
			return ast.WalkContinue, nil
		}

		resolved := r.resolver.Resolve(rawDest)
		img.Destination = []byte(workdir.AssetPath(resolved))
		img.SetAttributeString("loading", "lazy")
		img.SetAttributeString("decoding", "async")

		return ast.WalkContinue, nil
	})
}

// isRemoteDestination reports whether an image destination should be left
// untouched because it is not a local file reference.
func isRemoteDestination(dest string) bool {
	lower := strings.ToLower(dest)
	switch {
	case strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "data:"),
		strings.HasPrefix(lower, "blob:"),
		strings.HasPrefix(lower, "file://"),
		strings.HasPrefix(lower, "//"),
		strings.HasPrefix(lower, "#"),
		strings.HasPrefix(lower, workdir.AssetPrefix):
		return true
	}
	return false
}

// newPolicy builds the sanitization policy applied to every builtin render.
// It starts from the UGC policy and re-admits the markup the pipeline itself
// emits: chroma highlight spans, task-list checkboxes, heading anchors, and
// folding alert callouts.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	p.AllowAttrs("class").OnElements("span", "code", "pre", "div", "p", "table", "ul", "ol", "li", "svg", "path")
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("type", "checked", "disabled").OnElements("input")
	p.AllowElements("input", "details", "summary")
	p.AllowAttrs("open").OnElements("details")
	p.AllowAttrs("loading", "decoding").OnElements("img")
	p.AllowAttrs("align").OnElements("th", "td")
	p.AllowRelativeURLs(true)

	return p
}

//go:embed page.html
var pageTemplate string

// Shell returns the HTML page shell served on first load. Content arrives
// over the push channel afterwards; cssLinks are injected as additional
// stylesheet references.
func Shell(cssHrefs []string) string {
	var links strings.Builder
	for _, href := range cssHrefs {
		links.WriteString(`<link rel="stylesheet" href="` + href + `">` + "\n")
	}
	return strings.Replace(pageTemplate, "{{CSS_LINKS}}", links.String(), 1)
}

// CSSHref maps a configured custom CSS entry to the href the shell should
// reference: remote URLs pass through, local files are served by index under
// the custom CSS route.
func CSSHref(entry string, index int) string {
	lower := strings.ToLower(entry)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return entry
	}
	return fmt.Sprintf("/css/custom/%d", index)
}
