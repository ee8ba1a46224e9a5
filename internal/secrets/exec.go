package secrets

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// runCLI runs a secret manager's command-line tool and returns trimmed
// stdout. Stderr is handed to classify on failure so each backend can turn
// its tool's messages into actionable errors.
func runCLI(ctx context.Context, tool, backend, install string, classify func(stderr []byte) error, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := exec.LookPath(tool); err != nil {
		return "", &BackendError{
			Backend: backend,
			Reason:  tool + " CLI not found in PATH",
			Fix:     install,
			Err:     err,
		}
	}

	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", classify(stderr.Bytes())
	}
	return strings.TrimSpace(stdout.String()), nil
}
