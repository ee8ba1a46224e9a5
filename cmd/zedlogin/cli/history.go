package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/zedlogin/internal/audit"
	"github.com/majorcontext/zedlogin/internal/config"
	"github.com/majorcontext/zedlogin/internal/ui"
)

var historyFlags struct {
	limit   int
	account string
	verify  bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sign-in attempts",
	Long: `Show recent sign-in attempts from the exchange history database
(~/.zedlogin/history.db). The history is hash-chained; --verify checks that no
entry was altered or removed.

Examples:
  zedlogin history
  zedlogin history --limit 50 --account octo
  zedlogin history --verify`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "number of attempts to show")
	historyCmd.Flags().StringVar(&historyFlags.account, "account", "", "only show attempts for this account")
	historyCmd.Flags().BoolVar(&historyFlags.verify, "verify", false, "verify the hash chain")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := audit.OpenStore(config.HistoryPath())
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	if historyFlags.verify {
		res, err := store.Verify()
		if err != nil {
			return err
		}
		if jsonOut {
			return json.NewEncoder(ui.Out()).Encode(res)
		}
		if !res.Valid {
			return fmt.Errorf("history chain invalid: %s", res.Error)
		}
		fmt.Fprintf(ui.Out(), "%s %d entries, chain intact\n", ui.OKTag(), res.EntryCount)
		return nil
	}

	entries, err := store.Recent(historyFlags.limit, historyFlags.account)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(ui.Out())
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []*audit.Entry{}
		}
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(ui.Out(), "No sign-in attempts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(ui.Out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACCOUNT\tOUTCOME\tNAME\tUSER ID\tDURATION")
	for _, e := range entries {
		a := e.Attempt
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			a.Account, a.Outcome, dash(a.Name), dash(a.UserID),
			a.Duration.Round(100*time.Millisecond))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
