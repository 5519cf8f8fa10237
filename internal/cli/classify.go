// Package cli implements the classify command.
package cli

import (
	"github.com/ScarletRedJoker/jarvis-safety/internal/core"
	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(classifyCmd)
}

var classifyCmd = &cobra.Command{
	Use:   "classify <command>",
	Short: "Classify a command by risk level without running it",
	Long: `Classify a command against the pattern rules and print the resulting
risk level. Nothing is executed and nothing is recorded.

Compound commands (&&, ||, ;, |) are split into segments and the highest
risk among the segments wins. Forbidden patterns are checked against the
full command line first, so pipe-to-shell constructs cannot hide behind
segment splitting.

Examples:
  jarvis-safety classify "docker ps"
  jarvis-safety classify "rm -rf /tmp/build && docker restart web"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		c := fw.executor.Classifier().Classify(args[0])
		norm := core.NormalizeCommand(args[0])

		type classifyView struct {
			Command          string   `json:"command"`
			RiskLevel        string   `json:"risk_level"`
			MatchedRule      string   `json:"matched_rule"`
			RequiresApproval bool     `json:"requires_approval"`
			Allowed          bool     `json:"allowed"`
			IsCompound       bool     `json:"is_compound"`
			Segments         []string `json:"segments,omitempty"`
		}

		view := classifyView{
			Command:          args[0],
			RiskLevel:        string(c.RiskLevel),
			MatchedRule:      c.MatchedRule,
			RequiresApproval: c.RequiresApproval,
			Allowed:          c.Allowed,
			IsCompound:       norm.IsCompound,
		}
		if norm.IsCompound {
			view.Segments = norm.Segments
		}

		out := output.New(output.Format(GetOutput()))
		return out.Write(view)
	},
}
