package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/msto63/voicebridge/pkg/core/apperror"
)

// runCommand runs an engine binary and maps failures onto coded errors.
// stderr is carried in the error so callers see what the engine reported.
func runCommand(ctx context.Context, op, binary string, args []string, stdin string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperror.Wrap(err, apperror.CodeTimeout, op, fmt.Sprintf("%s timed out", binary))
	case errors.Is(err, exec.ErrNotFound):
		return apperror.Wrap(err, apperror.CodeServiceUnavailable, op, fmt.Sprintf("%s not found", binary))
	}
	return apperror.Newf(apperror.CodeExternalService, op, "%s failed: %v, stderr: %s", binary, err, strings.TrimSpace(stderr.String()))
}

// probeCommand runs binary with a single argument and succeeds on exit status 0
func probeCommand(ctx context.Context, binary, arg string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, arg)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", binary, arg, err)
	}
	return nil
}
