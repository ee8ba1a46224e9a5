package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/majorcontext/zedlogin/internal/credential"
	"github.com/majorcontext/zedlogin/internal/ui"
)

var accountsOutput string

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts in the credential store",
	Long: `List the display names and user IDs stored in the credential store.
Credentials themselves are never printed.

Examples:
  zedlogin accounts
  zedlogin accounts --output ~/zed2api/accounts.json --json
  zedlogin accounts remove work`,
	Args: cobra.NoArgs,
	RunE: runAccountsList,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove one account from the credential store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		found, err := credential.NewStore(accountsOutput).Remove(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no account named %q in %s", args[0], accountsOutput)
		}
		ui.Infof("Removed %s from %s", args[0], accountsOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
	accountsCmd.PersistentFlags().StringVarP(&accountsOutput, "output", "o", defaultOutputFile, "credential store file")
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	entries, err := credential.NewStore(accountsOutput).List()
	if err != nil {
		return err
	}

	if jsonOut {
		type jsonAccount struct {
			Name   string `json:"name"`
			UserID string `json:"user_id"`
		}
		out := make([]jsonAccount, 0, len(entries))
		for _, e := range entries {
			out = append(out, jsonAccount{Name: e.Name, UserID: e.UserID})
		}
		enc := json.NewEncoder(ui.Out())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(entries) == 0 {
		fmt.Fprintf(ui.Out(), "No accounts in %s.\n", accountsOutput)
		return nil
	}

	w := tabwriter.NewWriter(ui.Out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUSER ID")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Name, e.UserID)
	}
	return w.Flush()
}
