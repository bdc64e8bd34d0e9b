package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/credential"
)

func newKeyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "key [provider]",
		Short: "Check whether an API key can be resolved (never prints the key)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := root.cfg.Provider
			if len(args) == 1 {
				id = args[0]
			}
			id = aicmd.NormalizeProvider(id)
			if _, ok := root.cfg.ProviderConfig(id); !ok {
				return fmt.Errorf("%w: unknown provider %q (configured: %s)", aicmd.ErrConfig, id, strings.Join(root.cfg.ProviderIDs(), ", "))
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()

			key, found := newStack(root.cfg).resolver.Resolve(ctx, id)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "provider=%s\n", id)
			fmt.Fprintf(w, "slot=%s\n", credential.SlotName(id))
			fmt.Fprintf(w, "found=%t\n", found)
			fmt.Fprintf(w, "key_len=%d\n", len(key))
			if !found {
				fmt.Fprintf(w, "help=%s\n", credential.MissingKeyHelp(root.cfg, id))
			}
			return nil
		},
	}
}
