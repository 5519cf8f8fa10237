// Package cli implements the patterns command.
package cli

import (
	"fmt"
	"os"

	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
	"github.com/spf13/cobra"
)

var (
	flagPatternLevel      string
	flagPatternOutputFile string
)

func init() {
	patternsListCmd.Flags().StringVarP(&flagPatternLevel, "level", "l", "", "risk level (safe, medium_risk, high_risk, forbidden)")
	patternsExportCmd.Flags().StringVarP(&flagPatternOutputFile, "output-file", "f", "", "write the export to a file instead of stdout")

	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsExportCmd)

	rootCmd.AddCommand(patternsCmd)
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect command classification patterns",
	Long: `Inspect the patterns used to classify commands into risk levels.

Patterns are regular expressions matched case-insensitively against
commands. Custom patterns come from the [patterns] section of the config
file and are merged with the built-in rules at startup.`,
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patterns grouped by risk level",
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		classifier := fw.executor.Classifier()
		out := output.New(output.Format(GetOutput()))

		if flagPatternLevel != "" {
			level, err := parseRiskLevel(flagPatternLevel)
			if err != nil {
				return err
			}

			type patternView struct {
				Pattern     string `json:"pattern"`
				Description string `json:"description,omitempty"`
				Source      string `json:"source"`
			}

			patterns := classifier.ListPatterns(level)
			resp := make([]patternView, 0, len(patterns))
			for _, p := range patterns {
				resp = append(resp, patternView{
					Pattern:     p.Pattern,
					Description: p.Description,
					Source:      p.Source,
				})
			}
			return out.Write(map[string]any{string(level): resp})
		}

		return out.Write(classifier.Export().Levels)
	},
}

var patternsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full pattern set with per-level counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		export := fw.executor.Classifier().Export()

		if flagPatternOutputFile != "" {
			f, err := os.Create(flagPatternOutputFile)
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			defer f.Close()

			out := output.New(output.Format(GetOutput()), output.WithOutput(f))
			return out.Write(export)
		}

		out := output.New(output.Format(GetOutput()))
		return out.Write(export)
	},
}

func parseRiskLevel(s string) (db.RiskLevel, error) {
	switch s {
	case "safe":
		return db.RiskSafe, nil
	case "medium_risk", "medium":
		return db.RiskMedium, nil
	case "high_risk", "high":
		return db.RiskHigh, nil
	case "forbidden":
		return db.RiskForbidden, nil
	}
	return "", fmt.Errorf("invalid risk level: %s (must be safe, medium_risk, high_risk, or forbidden)", s)
}
