// Command markdownd serves a live-updating browser preview of markdown
// snapshots pushed by an editor over a small control protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"markdownd/internal/app"
	"markdownd/internal/config"
	"markdownd/internal/render"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewDefault()
	cfg.HTTPAddr = cmd.String("http-addr")
	cfg.ControlAddr = cmd.String("control-addr")
	cfg.Stdio = cmd.Bool("stdio")
	cfg.WorkingDirectory = cmd.String("working-directory")
	cfg.HighlightTheme = cmd.String("highlight-theme")
	cfg.CustomCSS = cmd.StringSlice("custom-css")
	cfg.ExternalRenderer = cmd.String("external-renderer")
	cfg.ExternalRendererTimeout = cmd.Duration("external-renderer-timeout")
	cfg.Browser = cmd.String("browser")
	cfg.NoAutoOpen = cmd.Bool("no-auto-open")
	cfg.InitialFile = cmd.Args().First()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	// stdout carries the control port handshake and stdio-mode replies, so
	// logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	composer, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	return composer.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:      "markdownd",
		Usage:     "Live markdown preview server driven by editor commands",
		ArgsUsage: "[markdown-file]",
		Action:    run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "Preview server bind address",
				Value:   "127.0.0.1:0",
				Sources: cli.EnvVars("MARKDOWND_HTTP_ADDR"),
			},
			&cli.StringFlag{
				Name:    "control-addr",
				Usage:   "Control socket bind address; the chosen port is printed on stdout",
				Value:   "127.0.0.1:0",
				Sources: cli.EnvVars("MARKDOWND_CONTROL_ADDR"),
			},
			&cli.BoolFlag{
				Name:  "stdio",
				Usage: "Read control commands as JSON lines on stdin instead of TCP",
			},
			&cli.StringFlag{
				Name:    "working-directory",
				Usage:   "Directory that anchors relative image paths",
				Sources: cli.EnvVars("MARKDOWND_WORKING_DIRECTORY"),
			},
			&cli.StringFlag{
				Name:    "highlight-theme",
				Usage:   "Syntax highlighting theme for fenced code blocks",
				Value:   "github",
				Sources: cli.EnvVars("MARKDOWND_HIGHLIGHT_THEME"),
			},
			&cli.StringSliceFlag{
				Name:  "custom-css",
				Usage: "Extra stylesheet (URL or file path), repeatable",
			},
			&cli.StringFlag{
				Name:  "external-renderer",
				Usage: "Shell command that renders markdown from stdin to HTML on stdout",
			},
			&cli.DurationFlag{
				Name:  "external-renderer-timeout",
				Usage: "Time limit for one external renderer invocation",
				Value: render.DefaultExternalTimeout,
			},
			&cli.StringFlag{
				Name:    "browser",
				Usage:   "Browser command to open the preview with",
				Sources: cli.EnvVars("MARKDOWND_BROWSER"),
			},
			&cli.BoolFlag{
				Name:  "no-auto-open",
				Usage: "Do not open the browser at startup",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log verbosity (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("MARKDOWND_LOG_LEVEL"),
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("fatal",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
}
