package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/editor"
	"github.com/npv12/zsh-ai-cmd/suggest"
)

type editFlags struct {
	prompt string
	loop   bool
	record string
}

func newEditCmd(root *rootOptions) *cobra.Command {
	opts := &editFlags{}
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a command line with AI suggestions on /dev/tty",
		Long: "Reads a line on /dev/tty. Press the trigger key to request a suggestion,\n" +
			"an accept key to take it, or keep typing to ignore it. The final line is\n" +
			"printed to stdout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdit(cmd.Context(), root.cfg, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.prompt, "prompt", "> ", "prompt shown before the buffer")
	cmd.Flags().BoolVar(&opts.loop, "loop", false, "keep reading lines until Ctrl-D")
	cmd.Flags().StringVar(&opts.record, "record", "", "append each suggestion outcome as TOML to this file")
	return cmd
}

func runEdit(ctx context.Context, cfg *aicmd.Config, opts *editFlags, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logCloser, err := aicmd.OpenDebugLog(cfg)
	if err != nil {
		return fmt.Errorf("debug log: %w", err)
	}
	defer logCloser.Close()
	for _, w := range aicmd.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	ed, err := editor.OpenTTY(editor.WithTrigger(cfg.TriggerKey))
	if err != nil {
		return err
	}
	defer ed.Close()

	var engineOpts []suggest.Option
	if opts.record != "" {
		f, err := os.OpenFile(opts.record, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		defer f.Close()
		rec := newRecorder(f, cfg.Provider)
		engineOpts = append(engineOpts, suggest.WithOutcome(rec.Record))
	}

	s := newStack(cfg)
	engine := suggest.NewEngine(cfg, ed, s.service, engineOpts...)
	ed.SetHandler(engine)

	out := rawSafe(stdout)

	for {
		line, err := ed.ReadLine(ctx, opts.prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, editor.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, line)
		if !opts.loop {
			return nil
		}
	}
}

// rawSafe returns w unchanged unless it is a terminal, which the editor
// leaves in raw mode: there a bare \n moves down without returning to
// column zero.
func rawSafe(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return rawTTYWriter{out: f}
	}
	return w
}

type rawTTYWriter struct {
	out io.Writer
}

// Write emits p line by line with \r\n terminators. The count refers to p.
func (w rawTTYWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			n, err := w.out.Write(p)
			return written + n, err
		}
		if _, err := w.out.Write(p[:i]); err != nil {
			return written, err
		}
		if _, err := io.WriteString(w.out, "\r\n"); err != nil {
			return written + i, err
		}
		written += i + 1
		p = p[i+1:]
	}
	return written, nil
}
