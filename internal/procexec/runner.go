package procexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Executor runs a short-lived command and returns its stdout.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, env []string) ([]byte, error)
}

var commandContext = exec.CommandContext

// CommandExecutor executes commands using os/exec.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args []string, env []string) ([]byte, error) {
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return out, fmt.Errorf("%s %s: %w", binary, strings.Join(args, " "), err)
		}
		return out, fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, msg)
	}
	return out, nil
}
