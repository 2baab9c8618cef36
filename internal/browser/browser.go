// Package browser launches the user's web browser at a given URL.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Open launches the platform default browser. The command is started and not
// waited on; browsers routinely daemonize or hand off to a running instance.
func Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// OpenWith launches a specific browser command instead of the platform
// default. The URL is appended to argv, so overrides with extra arguments
// like "firefox --new-window" work. An empty argv falls back to Open.
func OpenWith(argv []string, url string) error {
	if len(argv) == 0 {
		return Open(url)
	}

	cmd := exec.Command(argv[0], append(argv[1:], url)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser with %q: %w", argv[0], err)
	}
	return nil
}
