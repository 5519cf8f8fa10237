// Package cli implements the stats and show commands.
package cli

import (
	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(showCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show action counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		stats, err := fw.svc.GetStats(GetActor())
		if err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		return out.Write(stats)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <action-id>",
	Short: "Show the full record of an action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		action, err := fw.svc.Get(GetActor(), args[0])
		if err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		return out.Write(action)
	},
}
