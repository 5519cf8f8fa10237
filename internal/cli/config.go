package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ScarletRedJoker/jarvis-safety/internal/config"
	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
)

var flagConfigGlobal bool

func init() {
	configCmd.PersistentFlags().BoolVar(&flagConfigGlobal, "global", false,
		"operate on the user config (~/.jarvis/config.toml)")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or modify configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.LoadOptions{ConfigPath: flagConfig})
		if err != nil {
			return err
		}
		out := output.New(output.Format(GetOutput()))
		return out.Write(cfg)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.LoadOptions{ConfigPath: flagConfig})
		if err != nil {
			return err
		}

		val, ok := config.GetValue(cfg, args[0])
		if !ok {
			return fmt.Errorf("unknown key %q", args[0])
		}
		out := output.New(output.Format(GetOutput()))
		return out.Write(map[string]any{
			"key":   args[0],
			"value": val,
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the project (or --global) config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving project dir: %w", err)
		}
		userPath, projectPath := config.ConfigPaths(project, flagConfig)
		target := projectPath
		if flagConfigGlobal {
			target = userPath
		}
		if target == "" {
			return fmt.Errorf("no config file location available")
		}

		value := config.ParseValue(args[1])
		if err := config.WriteValue(target, args[0], value); err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		return out.Write(map[string]any{
			"path":  target,
			"key":   args[0],
			"value": value,
		})
	},
}
