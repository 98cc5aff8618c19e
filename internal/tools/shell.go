package tools

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

type ShellTool struct {
	Dir     string
	Timeout time.Duration
}

func NewShellTool(dir string, timeout time.Duration) *ShellTool {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ShellTool{Dir: dir, Timeout: timeout}
}

func (s *ShellTool) Name() string {
	return "shell"
}

func (s *ShellTool) Description() string {
	return "Execute a bash command in the workspace and return its combined output. Arguments: command."
}

func (s *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

// Execute runs the command. A non-zero exit is a Failure carrying the output; a command
// that could not start is an error.
func (s *ShellTool) Execute(ctx context.Context, args Arguments) (string, error) {
	if err := args.Require("command"); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", args.String("command"))
	cmd.Dir = s.Dir
	output, err := cmd.CombinedOutput()

	result := strings.TrimSpace(string(output))
	if result == "" {
		result = "(no output)"
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", Failf("command exited with code %d\nOutput: %s", exitErr.ExitCode(), result)
		}
		return "", err
	}
	return result, nil
}
