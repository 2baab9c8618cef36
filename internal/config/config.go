// Package config holds the runtime configuration for the preview server.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"markdownd/internal/render"
)

// Config represents the full server configuration, assembled from CLI flags
// and environment variables.
type Config struct {
	// HTTPAddr is the preview server bind address.
	HTTPAddr string

	// ControlAddr is the TCP control socket bind address. Port 0 picks a
	// free port, which is printed on stdout after startup.
	ControlAddr string

	// Stdio switches the control channel to line-delimited JSON on
	// stdin/stdout instead of TCP.
	Stdio bool

	// InitialFile is an optional markdown file rendered at startup and
	// re-rendered whenever it changes on disk.
	InitialFile string

	// WorkingDirectory anchors relative image resolution. Defaults to the
	// process working directory.
	WorkingDirectory string

	// HighlightTheme is the chroma style used for fenced code blocks.
	HighlightTheme string

	// CustomCSS lists extra stylesheets, each either a URL or a local file
	// path, linked into the preview page in order.
	CustomCSS []string

	// ExternalRenderer, when non-empty, replaces the built-in markdown
	// pipeline with an external command fed markdown on stdin.
	ExternalRenderer string

	// ExternalRendererTimeout bounds one external renderer invocation.
	ExternalRendererTimeout time.Duration

	// Browser overrides the platform-default browser command.
	Browser string

	// NoAutoOpen suppresses opening the browser at startup.
	NoAutoOpen bool
}

// Validate checks the configuration before startup.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.ControlAddr, validation.Required.When(!c.Stdio)),
		validation.Field(&c.HighlightTheme, validation.Required),
		validation.Field(&c.ExternalRendererTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}

	if !render.ValidTheme(c.HighlightTheme) {
		return fmt.Errorf("unknown highlight theme %q (known: %s)",
			c.HighlightTheme, strings.Join(render.ThemeNames(), ", "))
	}

	for _, entry := range c.CustomCSS {
		if isURL(entry) {
			continue
		}
		if _, err := os.Stat(entry); err != nil {
			return fmt.Errorf("custom css %q: %w", entry, err)
		}
	}

	if argv := c.ExternalArgv(); len(argv) > 0 {
		if _, err := exec.LookPath(argv[0]); err != nil {
			return fmt.Errorf("external renderer: %w", err)
		}
	}

	if c.WorkingDirectory != "" {
		info, err := os.Stat(c.WorkingDirectory)
		if err != nil {
			return fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working directory %q is not a directory", c.WorkingDirectory)
		}
	}

	if c.InitialFile != "" {
		if _, err := os.Stat(c.InitialFile); err != nil {
			return fmt.Errorf("initial file: %w", err)
		}
	}

	return nil
}

// ExternalArgv returns the external renderer command split into argv, or nil
// when no external renderer is configured.
func (c *Config) ExternalArgv() []string {
	return splitCommand(c.ExternalRenderer)
}

// BrowserArgv returns the browser override split into argv, or nil for the
// platform default.
func (c *Config) BrowserArgv() []string {
	return splitCommand(c.Browser)
}

func splitCommand(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// NewDefault returns a Config with the defaults used when no flags are set.
func NewDefault() *Config {
	return &Config{
		HTTPAddr:                "127.0.0.1:0",
		ControlAddr:             "127.0.0.1:0",
		HighlightTheme:          "github",
		ExternalRendererTimeout: render.DefaultExternalTimeout,
	}
}
