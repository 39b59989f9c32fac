package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/gemini-mind/pkg/cache"
	"github.com/Sternrassler/gemini-mind/pkg/client"
	"github.com/Sternrassler/gemini-mind/pkg/logging"
	"github.com/spf13/cobra"
)

var errCacheUnavailable = errors.New("cache unavailable: check REDIS_URL")

type generateFlags struct {
	model     string
	system    string
	systemSet bool
	options   []string
	raw       bool
	noCache   bool
}

// systemInstruction is nil unless --system was given, so --system ""
// still sends an empty instruction.
func (f generateFlags) systemInstruction() *string {
	if !f.systemSet {
		return nil
	}
	return &f.system
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	var flags generateFlags
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate content for a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.systemSet = cmd.Flags().Changed("system")
			return runGenerate(cmd, root, flags, args[0])
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&flags.model, "model", "m", "", "model name (default from GEMINI_DEFAULT_MODEL)")
	fs.StringVarP(&flags.system, "system", "s", "", "system instruction")
	fs.StringArrayVarP(&flags.options, "option", "o", nil, "extra request field as key=json, repeatable")
	fs.BoolVar(&flags.raw, "raw", false, "print the raw JSON payload")
	fs.BoolVar(&flags.noCache, "no-cache", false, "bypass the response cache")
	return cmd
}

func runGenerate(cmd *cobra.Command, root *rootOptions, flags generateFlags, prompt string) error {
	opts, err := generateOptions(flags.options, flags.model, flags.systemInstruction())
	if err != nil {
		return err
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if flags.noCache {
		cfg.Client.CacheEnabled = false
	}

	c, err := root.newClient(cfg.Client)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.GenerateContent(cmd.Context(), prompt, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flags.raw {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Raw())
	}

	if resp.ContentBlocked() {
		return fmt.Errorf("content blocked by safety filters")
	}
	text, ok := resp.Text()
	if !ok {
		return fmt.Errorf("response contains no text (finish reason %q)", resp.FinishReason())
	}
	fmt.Fprintln(out, text)
	return nil
}

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis response cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the fingerprint of every cached response",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCache(cmd.Context(), root, func(m *cache.Manager) error {
					fingerprints, ok := m.List(cmd.Context())
					if !ok {
						return errors.New("list failed")
					}
					for _, fp := range fingerprints {
						fmt.Fprintln(cmd.OutOrStdout(), fp)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear <fingerprint>",
			Short: "Remove one cached response",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCache(cmd.Context(), root, func(m *cache.Manager) error {
					if !m.Clear(cmd.Context(), args[0]) {
						return fmt.Errorf("clear %s failed", args[0])
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cache.Key(args[0]))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear-all",
			Short: "Remove every cached response",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCache(cmd.Context(), root, func(m *cache.Manager) error {
					out := cmd.OutOrStdout()
					// Best effort listing; entries written meanwhile are cleared but not printed
					fingerprints, _ := m.List(cmd.Context())
					if !m.ClearAll(cmd.Context()) {
						return errors.New("clear-all failed")
					}
					for _, fp := range fingerprints {
						fmt.Fprintf(out, "Cleared %s\n", cache.Key(fp))
					}
					fmt.Fprintf(out, "Cleared %d cached responses\n", len(fingerprints))
					return nil
				})
			},
		},
	)
	return cmd
}

// withCache runs fn against a cache manager built from the configuration,
// forcing the cache on regardless of GEMINI_CACHE_ENABLED. No API key is
// needed since the API is never called.
func withCache(ctx context.Context, root *rootOptions, fn func(*cache.Manager) error) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	cacheCfg := cfg.Client.CacheConfig()
	cacheCfg.Enabled = true

	m := cache.NewManager(ctx, cacheCfg, logging.NewLogger(logging.ComponentCache))
	defer m.Close()

	if !m.Enabled() {
		return errCacheUnavailable
	}
	return fn(m)
}

func newFingerprintCmd(root *rootOptions) *cobra.Command {
	var flags generateFlags
	cmd := &cobra.Command{
		Use:   "fingerprint <prompt>",
		Short: "Print the cache fingerprint of a generate call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.systemSet = cmd.Flags().Changed("system")
			opts, err := generateOptions(flags.options, flags.model, flags.systemInstruction())
			if err != nil {
				return err
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			model := opts.Model
			if model == "" {
				model = cfg.Client.DefaultModel
			}

			fp := client.Fingerprint(args[0], model, opts.SystemInstruction, opts.Options)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, fp)
			fmt.Fprintln(out, cache.Key(fp))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&flags.model, "model", "m", "", "model name (default from GEMINI_DEFAULT_MODEL)")
	fs.StringVarP(&flags.system, "system", "s", "", "system instruction")
	fs.StringArrayVarP(&flags.options, "option", "o", nil, "extra request field as key=json, repeatable")
	return cmd
}
