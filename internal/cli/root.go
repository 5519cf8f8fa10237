// Package cli implements the Cobra command-line interface for the Jarvis
// safety framework.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ScarletRedJoker/jarvis-safety/internal/output"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flag values.
var (
	flagConfig  string
	flagOutput  string
	flagJSON    bool
	flagVerbose bool
	flagDB      string
	flagActor   string
	flagAudit   string
)

var rootCmd = &cobra.Command{
	Use:   "jarvis-safety",
	Short: "Guarded command execution with risk classification and human approval",
	Long: `Jarvis Safety Framework - guarded remote command execution.

Commands are classified by risk level before anything runs:
  SAFE         Read-only commands, executed immediately
  MEDIUM_RISK  Reversible service management, requires approval
  HIGH_RISK    Destructive operations, requires approval
  FORBIDDEN    Catastrophic commands, always blocked

Unknown commands fail closed: they default to HIGH_RISK and manual review.
Risky commands are queued as pending actions; a reviewer approves or rejects
them, and every decision is written to an append-only audit log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{
			"version":    version,
			"commit":     commit,
			"build_date": date,
			"go_version": runtime.Version(),
			"db_path":    GetDB(),
		}

		switch GetOutput() {
		case "json", "yaml":
			out := output.New(output.Format(GetOutput()))
			return out.Write(payload)
		case "text":
			fmt.Printf("jarvis-safety %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
			fmt.Printf("  go:     %s\n", runtime.Version())
			fmt.Printf("  db:     %s\n", GetDB())
			return nil
		default:
			return fmt.Errorf("unsupported format: %s", GetOutput())
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a caller-supplied context, so
// long-running commands like serve stop on signal.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// GetOutput returns the configured output format.
// Precedence: CLI flags > JARVIS_OUTPUT_FORMAT env > default.
func GetOutput() string {
	if flagJSON {
		return "json"
	}
	if flagOutput != "text" {
		return flagOutput
	}
	if envFormat := os.Getenv("JARVIS_OUTPUT_FORMAT"); envFormat != "" {
		switch envFormat {
		case "json", "yaml", "text":
			return envFormat
		}
	}
	return flagOutput
}

// GetDB returns the action store path.
func GetDB() string {
	if flagDB != "" {
		return flagDB
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".jarvis", "actions.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".jarvis", "actions.db")
}

// GetActor returns the actor identifier for requests made from this CLI.
func GetActor() string {
	if flagActor != "" {
		return flagActor
	}
	if actor := os.Getenv("JARVIS_ACTOR"); actor != "" {
		return actor
	}
	// Fallback to username@hostname.
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	return user + "@" + host
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "output format: text, json, yaml (env: JARVIS_OUTPUT_FORMAT)")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "shorthand for --output=json")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "action store path")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "actor identifier")
	rootCmd.PersistentFlags().StringVar(&flagAudit, "audit-log", "", "audit log path")

	rootCmd.AddCommand(versionCmd)
}
