// Package cli implements the reject and cancel commands.
package cli

import (
	"fmt"

	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
	"github.com/spf13/cobra"
)

var flagRejectReason string

func init() {
	rejectCmd.Flags().StringVar(&flagRejectReason, "reason", "", "reason for rejecting the action (required)")

	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(cancelCmd)
}

var rejectCmd = &cobra.Command{
	Use:   "reject <action-id>",
	Short: "Reject a pending action",
	Long: `Reject a pending action with a reason. Rejected actions are kept for
the audit trail and cannot transition to any other state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRejectReason == "" {
			return fmt.Errorf("--reason is required")
		}

		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		action, err := fw.svc.Reject(GetActor(), args[0], flagRejectReason)
		if err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		return out.Write(action)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <action-id>",
	Short: "Cancel an action that has not finished executing",
	Long: `Cancel an action. Pending and approved actions can be cancelled; an
action that already executed, failed, or was rejected cannot.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		action, err := fw.svc.Cancel(GetActor(), args[0])
		if err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		return out.Write(action)
	},
}
