// Package app wires the renderer, update mailbox, preview server and control
// channel into one running composition.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"markdownd/internal/browser"
	"markdownd/internal/config"
	"markdownd/internal/control"
	"markdownd/internal/mailbox"
	"markdownd/internal/render"
	"markdownd/internal/transport/httpserver"
	"markdownd/internal/watch"
	"markdownd/internal/workdir"
)

// Composer owns the full preview pipeline. It implements control.Dispatcher,
// so editor commands land here and fan out to the right component.
type Composer struct {
	cfg    *config.Config
	logger *slog.Logger

	resolver *workdir.Resolver
	mail     *mailbox.Mailbox
	web      *httpserver.Server

	// renderFunc is the renderer entry point. Split out so tests can
	// substitute a failing renderer.
	renderFunc func(context.Context, []byte) (string, error)

	// Stdin and Stdout carry the control channel's stdio framing and the
	// control-port handshake. Logging goes to stderr so these stay clean.
	Stdin  io.Reader
	Stdout io.Writer

	mu       sync.Mutex
	lastGood string
	rendered bool
}

// New builds the composition from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Composer, error) {
	dir := cfg.WorkingDirectory
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
	}
	resolver, err := workdir.New(dir)
	if err != nil {
		return nil, err
	}

	renderer := render.New(render.Options{
		ExternalCommand: cfg.ExternalArgv(),
		ExternalTimeout: cfg.ExternalRendererTimeout,
	}, resolver)

	highlightCSS, err := render.HighlightCSS(cfg.HighlightTheme)
	if err != nil {
		return nil, err
	}

	// Local stylesheet paths get routes under /css/custom/; URLs are linked
	// directly. Link order follows the configuration.
	var hrefs []string
	var localFiles []string
	for _, entry := range cfg.CustomCSS {
		href := render.CSSHref(entry, len(localFiles))
		hrefs = append(hrefs, href)
		if href != entry {
			localFiles = append(localFiles, entry)
		}
	}

	web := httpserver.New(httpserver.Config{
		Addr:           cfg.HTTPAddr,
		Shell:          render.Shell(hrefs),
		HighlightCSS:   highlightCSS,
		CustomCSSFiles: localFiles,
		Logger:         logger,
	})

	return &Composer{
		cfg:        cfg,
		logger:     logger,
		resolver:   resolver,
		mail:       mailbox.New(),
		web:        web,
		renderFunc: renderer.Render,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled or a component
// fails. On TCP control mode the bound control port is printed on stdout once
// the socket is up; editor integrations read it to find the server.
func (c *Composer) Run(ctx context.Context) error {
	var initial []byte
	if c.cfg.InitialFile != "" {
		var err error
		initial, err = os.ReadFile(c.cfg.InitialFile)
		if err != nil {
			return fmt.Errorf("read initial file: %w", err)
		}
	}

	var ctrl *control.Server
	if !c.cfg.Stdio {
		var err error
		ctrl, err = control.Listen(c.cfg.ControlAddr, c, c.logger)
		if err != nil {
			return err
		}
	}

	if err := c.web.Start(); err != nil {
		if ctrl != nil {
			_ = ctrl.Close()
		}
		return err
	}
	c.logger.Info("preview server listening", slog.String("url", c.web.URL()))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return c.web.Stop()
	})

	g.Go(func() error { return c.processLoop(ctx) })

	if ctrl != nil {
		fmt.Fprintln(c.Stdout, ctrl.Port())
		c.logger.Info("control socket listening", slog.String("addr", ctrl.Addr().String()))
		g.Go(func() error { return ctrl.Serve(ctx) })
	} else {
		g.Go(func() error {
			return control.ServeStdio(ctx, c.Stdin, c.Stdout, c, c.logger)
		})
	}

	if c.cfg.InitialFile != "" {
		c.mail.Publish(initial)
		path := c.cfg.InitialFile
		g.Go(func() error {
			return watch.File(ctx, path, c.mail.Publish, c.logger)
		})
	}

	if !c.cfg.NoAutoOpen {
		c.OpenBrowser()
	}

	return g.Wait()
}

// processLoop consumes coalesced snapshots, renders them and broadcasts the
// result. A failed render keeps the previous page on screen.
func (c *Composer) processLoop(ctx context.Context) error {
	for {
		snapshot, err := c.mail.Consume(ctx)
		if err != nil {
			return nil
		}

		html, err := c.renderFunc(ctx, snapshot)
		if err != nil {
			c.logger.Error("render failed", slog.String("error", err.Error()))
			c.mu.Lock()
			last, ok := c.lastGood, c.rendered
			c.mu.Unlock()
			if ok {
				c.web.Publish(last)
			}
			continue
		}

		c.mu.Lock()
		c.lastGood, c.rendered = html, true
		c.mu.Unlock()
		c.web.Publish(html)
	}
}

// SendData queues a markdown snapshot for rendering.
func (c *Composer) SendData(text string) {
	c.mail.Publish([]byte(text))
}

// OpenBrowser opens the preview page, honoring the configured browser
// override. Launch failures are logged; the server keeps running.
func (c *Composer) OpenBrowser() {
	url := c.web.URL()
	var err error
	if argv := c.cfg.BrowserArgv(); len(argv) > 0 {
		err = browser.OpenWith(argv, url)
	} else {
		err = browser.Open(url)
	}
	if err != nil {
		c.logger.Warn("cannot open browser", slog.String("error", err.Error()))
	}
}

// Chdir moves the working directory used for relative image resolution. It
// affects the next render; already-delivered pages are left as they are.
func (c *Composer) Chdir(path string) {
	if err := c.resolver.Set(path); err != nil {
		c.logger.Warn("cannot change working directory",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	c.logger.Info("working directory changed", slog.String("dir", c.resolver.Dir()))
}

// Status reports liveness and the preview address.
func (c *Composer) Status() control.Status {
	return control.Status{Alive: true, HTTPAddr: c.web.Addr()}
}

// URL returns the preview page address. Only valid after Run has started the
// web server.
func (c *Composer) URL() string {
	return c.web.URL()
}
