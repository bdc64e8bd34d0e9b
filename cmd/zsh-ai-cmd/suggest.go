package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/provider"
	"github.com/npv12/zsh-ai-cmd/serve"
)

type suggestFlags struct {
	socket  string
	session string
}

func newSuggestCmd(root *rootOptions) *cobra.Command {
	opts := &suggestFlags{}
	cmd := &cobra.Command{
		Use:   "suggest <text...>",
		Short: "Print a single command suggestion for text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			input := strings.Join(args, " ")
			var (
				suggestion string
				err        error
			)
			if opts.socket != "" {
				suggestion, err = querySocket(ctx, opts, aicmd.NormalizeProvider(root.provider), input)
			} else {
				ctx, cancel := context.WithTimeout(ctx, provider.RequestTimeout)
				defer cancel()
				suggestion, err = newStack(root.cfg).service.Complete(ctx, input)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), suggestion)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.socket, "socket", "", "ask a running daemon on this socket instead of calling the provider")
	cmd.Flags().StringVar(&opts.session, "session", "", "daemon session id (default: random)")
	return cmd
}

// querySocket sends one request to the daemon and converts its error
// envelope back into the local error taxonomy.
func querySocket(ctx context.Context, opts *suggestFlags, providerID, input string) (string, error) {
	session := opts.session
	if session == "" {
		session = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, provider.RequestTimeout+time.Second)
	defer cancel()

	reqID := nextRequestID()
	resp, err := serve.Query(ctx, opts.socket, &aicmd.Request{
		RequestID: reqID,
		SessionID: session,
		Input:     input,
		Provider:  providerID,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			cancelCtx, stop := context.WithTimeout(context.Background(), time.Second)
			defer stop()
			serve.Cancel(cancelCtx, opts.socket, session)
		}
		return "", fmt.Errorf("daemon: %w", err)
	}
	if resp.RequestID != reqID {
		return "", fmt.Errorf("daemon: response for request %d, sent %d", resp.RequestID, reqID)
	}
	if resp.Error != nil {
		return "", responseError(resp.Error)
	}
	return resp.Suggestion, nil
}

var requestSeq atomic.Int64

// nextRequestID returns an id that differs between invocations sharing a
// session: the clock seeds it and a counter orders calls in one process.
func nextRequestID() int {
	requestSeq.CompareAndSwap(0, time.Now().UnixMilli()&math.MaxInt32)
	return int(requestSeq.Add(1))
}

func responseError(e *aicmd.Error) error {
	var base error
	switch e.Code {
	case aicmd.CodeConfig:
		base = aicmd.ErrConfig
	case aicmd.CodeCredentialMissing:
		base = aicmd.ErrCredentialMissing
	case aicmd.CodeBackend:
		base = aicmd.ErrBackend
	case aicmd.CodeEmptyResult:
		base = aicmd.ErrEmptyResult
	default:
		return errors.New(e.Message)
	}
	if e.Message == base.Error() {
		return base
	}
	return fmt.Errorf("%w: %s", base, strings.TrimPrefix(e.Message, base.Error()+": "))
}
