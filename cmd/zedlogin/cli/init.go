package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/majorcontext/zedlogin/internal/account"
	"github.com/majorcontext/zedlogin/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init [accounts-file]",
	Short: "Create an example accounts file",
	Long: `Create an example accounts file (default github_accounts.json). Files ending
in .yaml or .yml are written as YAML. An existing file is never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultAccountsFile
		if len(args) > 0 {
			path = args[0]
		}
		if err := account.WriteExample(path); err != nil {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%s already exists", path)
			}
			return err
		}
		ui.Infof("Created %s", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
