// Package configcmder provides the config command for managing persistent
// particle configuration stored in the .particle/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saamerm/particle/pkg/cliui"
	"github.com/saamerm/particle/pkg/config"
)

const configLongDesc string = `Manage persistent particle configuration.

Configuration is stored as config.toml in the .particle/ directory and
provides default values for command flags. CLI flags and PARTICLE_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  cloud.api_url, cloud.client_id, cloud.client_secret, cloud.app_name,
  stream.prefix, stream.reconnect_delay,
  forward.kafka_brokers, forward.kafka_topic,
  storage.sqlite_path, storage.postgres_dsn,
  worker.count, worker.queue_size

Examples:
  particle config set stream.reconnect_delay 10s
  particle config set forward.kafka_brokers broker1:9092,broker2:9092
  particle config get cloud.api_url
  particle config list`

const configShortDesc string = "Manage persistent particle configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "%s\n", cliui.StepStyle.Render("Config file: "+target))
		return
	}
	fmt.Fprintf(w, "%s\n", cliui.StepStyle.Render("No config file found. Using defaults."))
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Get a configuration value from config.toml.

Example:
  particle config get stream.reconnect_delay`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := checkKey(key); err != nil {
				return err
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			value, err := cfger.GetConfigValue(key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if value == "" {
				fmt.Fprintf(out, "%s\n", cliui.StepStyle.Render("<not set>"))
				return nil
			}
			fmt.Fprintln(out, value)
			return nil
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in config.toml.

Examples:
  particle config set cloud.app_name my-gateway
  particle config set worker.count 8`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := checkKey(key); err != nil {
				return err
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := cfger.SetConfigValue(key, value); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTarget(out, cfger)
			fmt.Fprintf(out, "  %s Set %s = %s\n", cliui.SuccessMark, cliui.HeaderStyle.Render(key), value)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			keys := config.ValidConfigKeys()
			rows := make([][]string, 0, len(keys))
			for _, key := range keys {
				value, err := cfger.GetConfigValue(key)
				if err != nil {
					return err
				}
				if value == "" {
					value = "<not set>"
				}
				rows = append(rows, []string{key, value})
			}

			out := cmd.OutOrStdout()
			printTarget(out, cfger)
			cliui.Columns(out, []string{"KEY", "VALUE"}, rows, 0)
			return nil
		},
	}
}
