// Package cli implements the serve command.
package cli

import (
	"fmt"
	"strings"

	"github.com/ScarletRedJoker/jarvis-safety/internal/api"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	flagServeListen string
	flagServeTokens []string
)

func init() {
	serveCmd.Flags().StringVar(&flagServeListen, "listen", "", "listen address (default from config, 127.0.0.1:8787)")
	serveCmd.Flags().StringSliceVar(&flagServeTokens, "token", nil, "additional token=identity pair (repeatable)")

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the approval API over HTTP",
	Long: `Serve the approval workflow and execution pipeline over HTTP.

Every request must carry a bearer token from the [server.tokens] config
table (or --token flags); the token maps to the caller identity recorded
on approvals and rejections. The server shuts down cleanly on SIGINT.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := openFramework()
		if err != nil {
			return err
		}
		defer fw.Close()

		tokens := make(map[string]string, len(fw.cfg.Server.Tokens))
		for token, identity := range fw.cfg.Server.Tokens {
			tokens[token] = identity
		}
		for _, pair := range flagServeTokens {
			token, identity, ok := strings.Cut(pair, "=")
			if !ok || token == "" || identity == "" {
				return fmt.Errorf("invalid --token %q: expected token=identity", pair)
			}
			tokens[token] = identity
		}
		if len(tokens) == 0 {
			return fmt.Errorf("no API tokens configured; set [server.tokens] or pass --token")
		}

		addr := fw.cfg.Server.Listen
		if flagServeListen != "" {
			addr = flagServeListen
		}

		log.Info("starting approval API", "addr", addr, "tokens", len(tokens))

		srv := api.NewServer(fw.svc, fw.executor, tokens)
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}
