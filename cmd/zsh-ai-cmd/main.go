// Command zsh-ai-cmd turns a natural-language fragment typed on the command
// line into a shell command suggestion shown as ghost text.
//
// Usage:
//
//	zsh-ai-cmd edit              # interactive editor on /dev/tty
//	zsh-ai-cmd suggest list files
//	zsh-ai-cmd serve             # daemon for the zsh widget
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/credential"
	"github.com/npv12/zsh-ai-cmd/provider"
	"github.com/npv12/zsh-ai-cmd/suggest"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
	provider   string
	cfg        *aicmd.Config
}

// prepare loads the configuration once; every subcommand receives it
// read-only.
func (r *rootOptions) prepare() error {
	cfg, err := aicmd.LoadConfigFrom(r.configPath)
	if err != nil {
		return err
	}
	if r.provider != "" {
		cfg.Provider = aicmd.NormalizeProvider(r.provider)
	}
	r.cfg = cfg
	return nil
}

// stack wires the credential resolver, the provider dispatcher and the
// suggestion service for cfg.
type stack struct {
	resolver *credential.Resolver
	service  *suggest.Service
}

func newStack(cfg *aicmd.Config) *stack {
	resolver := credential.NewResolver(cfg, credential.WithMissingHandler(func(id string) {
		slog.Warn("api key missing", "provider", id, "slot", credential.SlotName(id))
	}))
	dispatcher := provider.NewDispatcher(cfg, resolver)
	return &stack{
		resolver: resolver,
		service:  suggest.NewService(cfg, resolver, dispatcher),
	}
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "zsh-ai-cmd",
		Short:         "AI command suggestions as ghost text",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", aicmd.ConfigPath(), "path to config.toml")
	rootCmd.PersistentFlags().StringVar(&opts.provider, "provider", "", "provider id (overrides config)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return opts.prepare()
	}

	rootCmd.AddCommand(newEditCmd(opts))
	rootCmd.AddCommand(newSuggestCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newKeyCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "zsh-ai-cmd", Version)
		},
	}
}
