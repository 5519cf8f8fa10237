// Package cli implements the pending command.
package cli

import (
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/approval"
	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
	"github.com/spf13/cobra"
)

var (
	flagPendingType   string
	flagPendingLimit  int
	flagPendingOffset int
)

func init() {
	pendingCmd.Flags().StringVar(&flagPendingType, "type", "", "only show actions of this type")
	pendingCmd.Flags().IntVar(&flagPendingLimit, "limit", 50, "maximum number of actions to show")
	pendingCmd.Flags().IntVar(&flagPendingOffset, "offset", 0, "number of actions to skip")

	rootCmd.AddCommand(pendingCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending actions awaiting approval",
	Long: `List pending actions, newest first. Actions past their expiry are
marked EXPIRED during listing and are not shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		actions, err := fw.svc.ListPending(GetActor(), approval.ListOptions{
			ActionType: flagPendingType,
			Limit:      flagPendingLimit,
			Offset:     flagPendingOffset,
		})
		if err != nil {
			return err
		}

		type pendingView struct {
			ID          string `json:"id"`
			ActionType  string `json:"action_type"`
			Command     string `json:"command"`
			Description string `json:"description,omitempty"`
			RiskLevel   string `json:"risk_level"`
			RequestedBy string `json:"requested_by"`
			RequestedAt string `json:"requested_at"`
			ExpiresAt   string `json:"expires_at"`
		}

		resp := make([]pendingView, 0, len(actions))
		for _, a := range actions {
			resp = append(resp, pendingView{
				ID:          a.ID,
				ActionType:  a.ActionType,
				Command:     a.Command,
				Description: a.Description,
				RiskLevel:   string(a.RiskLevel),
				RequestedBy: a.RequestedBy,
				RequestedAt: a.RequestedAt.Format(time.RFC3339),
				ExpiresAt:   a.ExpiresAt.Format(time.RFC3339),
			})
		}

		out := output.New(output.Format(GetOutput()))
		return out.Write(resp)
	},
}
