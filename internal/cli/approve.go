// Package cli implements the approve command.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ScarletRedJoker/jarvis-safety/internal/approval"
	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagApproveExecute bool
	flagApproveYes     bool
)

func init() {
	approveCmd.Flags().BoolVar(&flagApproveExecute, "execute", false, "execute the command immediately after approval")
	approveCmd.Flags().BoolVarP(&flagApproveYes, "yes", "y", false, "skip the interactive confirmation prompt")

	rootCmd.AddCommand(approveCmd)
}

var approveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve a pending action",
	Long: `Approve a pending action. With --execute the stored command runs
immediately after approval and the result is recorded on the action.

Approval requires confirmation: either answer the interactive prompt or
pass --yes. Actions that require checkpoint data cannot be approved until
the checkpoint has been attached.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		out := output.New(output.Format(GetOutput()))

		action, err := fw.svc.Get(GetActor(), args[0])
		if err != nil {
			return err
		}

		if !flagApproveYes {
			ok, err := confirmApproval(action.Command, string(action.RiskLevel))
			if err != nil {
				return err
			}
			if !ok {
				out.Success("approval aborted")
				return nil
			}
		}

		result, err := fw.svc.Approve(cmd.Context(), GetActor(), args[0], approval.ApproveOptions{
			ExecuteImmediately: flagApproveExecute,
		})
		if err != nil {
			return err
		}

		return out.Write(result)
	},
}

// confirmApproval prompts on the terminal before approving. Non-interactive
// callers must pass --yes.
func confirmApproval(command, riskLevel string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal; pass --yes to approve non-interactively")
	}

	fmt.Fprintf(os.Stderr, "Approve %s command?\n  %s\n[y/N]: ", riskLevel, command)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
