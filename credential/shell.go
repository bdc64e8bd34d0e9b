package credential

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// InterpShell runs commands with the mvdan.cc/sh interpreter, so key_command
// behaves the same regardless of the user's login shell. Stderr is discarded.
type InterpShell struct {
	// Env is the command environment. nil means the process environment.
	Env []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// Output parses and runs command, returning its standard output.
func (s *InterpShell) Output(ctx context.Context, command string) (string, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "key_command")
	if err != nil {
		return "", fmt.Errorf("parse key command: %w", err)
	}

	env := s.Env
	if env == nil {
		env = os.Environ()
	}

	var stdout bytes.Buffer
	opts := []interp.RunnerOption{
		interp.StdIO(nil, &stdout, io.Discard),
		interp.Env(expand.ListEnviron(env...)),
	}
	if s.Dir != "" {
		opts = append(opts, interp.Dir(s.Dir))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return "", err
	}

	if err := runner.Run(ctx, file); err != nil {
		return stdout.String(), err
	}
	return stdout.String(), nil
}

// exitStatus extracts the exit status from a shell error for logging.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var status interp.ExitStatus
	if errors.As(err, &status) {
		return int(status)
	}
	return -1
}
