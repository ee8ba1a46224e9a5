// Package cli implements the zedlogin command-line interface using Cobra.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/majorcontext/zedlogin/internal/config"
	"github.com/majorcontext/zedlogin/internal/log"
)

var (
	verbose bool
	jsonOut bool

	// globalCfg is loaded before every command.
	globalCfg *config.GlobalConfig
)

var rootCmd = &cobra.Command{
	Use:   "zedlogin",
	Short: "Batch sign-in to Zed with GitHub accounts",
	Long: `zedlogin signs GitHub accounts in to Zed through the native-app sign-in
flow and collects the resulting credentials in an accounts.json file
(zed2api format).

Each sign-in generates a throwaway RSA key, opens the Zed sign-in page in
Chrome, completes the GitHub login and authorization, and decrypts the
credential Zed sends back to a local callback port. Results are merged into
the output file after every success; existing entries are never dropped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadGlobal()
		if err != nil {
			return err
		}
		globalCfg = cfg

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      config.DebugDir(),
			RetentionDays: cfg.Debug.RetentionDays,
		}); err != nil {
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context; a batch stops after the account in flight.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
}
