package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Sternrassler/gemini-mind/internal/appconfig"
	"github.com/Sternrassler/gemini-mind/pkg/client"
	"github.com/Sternrassler/gemini-mind/pkg/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfgPath string
	apiKey  string
	baseURL string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "gemini-mind",
		Short:         "Query the Gemini API with an optional Redis response cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.cfgPath, "config", "", "config file (yaml, json or toml)")
	fs.StringVar(&opts.apiKey, "api-key", "", "Gemini API key (overrides GEMINI_API_KEY)")
	fs.StringVar(&opts.baseURL, "base-url", client.DefaultBaseURL, "Gemini API base URL")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newCacheCmd(opts),
		newFingerprintCmd(opts),
	)
	return cmd
}

// loadConfig reads the environment and config file and applies the
// command line overrides.
func (o *rootOptions) loadConfig() (*appconfig.Config, error) {
	cfg, err := appconfig.Load(o.cfgPath)
	if err != nil {
		return nil, err
	}
	if o.apiKey != "" {
		cfg.Client.APIKey = o.apiKey
	}

	cfg.Logging.Output = os.Stderr
	logging.Setup(cfg.Logging)
	return cfg, nil
}

func (o *rootOptions) newClient(cfg client.Config, extra ...client.Option) (*client.Client, error) {
	opts := append([]client.Option{
		client.WithBaseURL(o.baseURL),
		client.WithLogger(logging.NewLogger(logging.ComponentCLI)),
	}, extra...)
	return client.New(cfg, opts...)
}

// parseOptionFlags turns repeated key=json flags into an option map.
func parseOptionFlags(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}

	values := make(map[string]any, len(flags))
	for _, flag := range flags {
		key, raw, ok := strings.Cut(flag, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("option %q: expected key=json", flag)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("option %q: value is not valid JSON: %w", key, err)
		}
		values[key] = value
	}
	return values, nil
}

// generateOptions merges --option values with the dedicated flags, which win.
func generateOptions(optionFlags []string, model string, system *string) (client.GenerateOptions, error) {
	values, err := parseOptionFlags(optionFlags)
	if err != nil {
		return client.GenerateOptions{}, err
	}

	opts, err := client.ParseGenerateOptions(values)
	if err != nil {
		return client.GenerateOptions{}, err
	}
	if model != "" {
		opts.Model = model
	}
	if system != nil {
		opts.SystemInstruction = system
	}
	return opts, nil
}
