package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fluxorio/todochaos/pkg/config"
)

const redacted = "<redacted>"

// NewConfigCommand creates the config command group
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigCheckCommand(rootOpts))
	cmd.AddCommand(newConfigPrintCommand(rootOpts))
	return cmd
}

func newConfigCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config ok: api %s, docstore %s, chaos enabled=%t\n",
				cfg.Server.Addr, cfg.Docstore.Driver, cfg.Chaos.Enabled)
			return err
		},
	}
}

func newConfigPrintCommand(rootOpts *RootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			redact(cfg)

			var out []byte
			switch format {
			case "yaml":
				out, err = yaml.Marshal(cfg)
			case "json":
				out, err = json.MarshalIndent(cfg, "", "  ")
				out = append(out, '\n')
			default:
				return fmt.Errorf("invalid format %q: must be yaml or json", format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format (yaml|json)")
	return cmd
}

func redact(cfg *config.AppConfig) {
	cfg.Auth.Secret = redacted
	for name := range cfg.Auth.Accounts {
		cfg.Auth.Accounts[name] = redacted
	}
	if len(cfg.Auth.APIKeys) > 0 {
		keys := make(map[string][]string, len(cfg.Auth.APIKeys))
		i := 0
		for _, roles := range cfg.Auth.APIKeys {
			i++
			keys[fmt.Sprintf("%s-%d", redacted, i)] = roles
		}
		cfg.Auth.APIKeys = keys
	}
}
