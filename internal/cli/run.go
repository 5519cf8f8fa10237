// Package cli implements the run and dry-run commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/core"
	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
	"github.com/spf13/cobra"
)

var (
	flagRunTimeout     int
	flagRunActionType  string
	flagRunDescription string
)

func init() {
	runCmd.Flags().IntVar(&flagRunTimeout, "timeout", 0, "execution timeout in seconds (0 = configured default)")
	runCmd.Flags().StringVar(&flagRunActionType, "type", "command", "action type recorded for queued approvals")
	runCmd.Flags().StringVar(&flagRunDescription, "description", "", "human-readable description of the command")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dryRunCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Run a command through the safety pipeline",
	Long: `Run a command through classification, rate limiting, and execution.

Flow:
1. Classify the command by risk level
2. FORBIDDEN: blocked, never executed
3. SAFE: rate-limit check, then execute with a timeout
4. MEDIUM_RISK / HIGH_RISK: a pending approval action is created instead of executing

Every outcome is written to the audit log.

Examples:
  jarvis-safety run "docker ps"
  jarvis-safety run "docker restart web" --description "Recycle the web container"
  jarvis-safety run "rm -rf ./build" --type cleanup`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		req := core.ExecRequest{
			Command:     args[0],
			Actor:       GetActor(),
			Mode:        db.ModeExecute,
			ActionType:  flagRunActionType,
			Description: flagRunDescription,
		}
		if flagRunTimeout > 0 {
			req.Timeout = time.Duration(flagRunTimeout) * time.Second
		}

		result := fw.executor.Execute(cmd.Context(), req)

		out := output.New(output.Format(GetOutput()))
		if err := out.Write(result); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("command did not succeed")
		}
		return nil
	},
}

var dryRunCmd = &cobra.Command{
	Use:   "dry-run <command>",
	Short: "Preview what running a command would do",
	Long: `Classify a command and report what the run command would do with it,
without spawning anything. The dry run is still written to the audit log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		result := fw.executor.DryRun(context.Background(), args[0], GetActor())

		out := output.New(output.Format(GetOutput()))
		return out.Write(result)
	},
}
