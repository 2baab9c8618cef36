package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrExternalRenderer marks failures of a configured external renderer
// command. Callers keep the previously rendered HTML on this error instead of
// blanking the preview.
var ErrExternalRenderer = errors.New("external renderer failed")

// renderExternal pipes the snapshot to the configured command and returns its
// stdout verbatim. The invocation is bounded by the configured timeout; a
// timeout is reported the same way as a nonzero exit.
func (r *Renderer) renderExternal(ctx context.Context, snapshot []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ExternalTimeout)
	defer cancel()

	argv := r.opts.ExternalCommand
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(snapshot)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %q timed out after %s", ErrExternalRenderer, argv[0], r.opts.ExternalTimeout)
		}
		return "", fmt.Errorf("%w: %q: %v (stderr: %s)", ErrExternalRenderer, argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}

	return stdout.String(), nil
}
