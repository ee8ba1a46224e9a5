package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/zedlogin/internal/account"
	"github.com/majorcontext/zedlogin/internal/audit"
	"github.com/majorcontext/zedlogin/internal/batch"
	"github.com/majorcontext/zedlogin/internal/browser"
	"github.com/majorcontext/zedlogin/internal/config"
	"github.com/majorcontext/zedlogin/internal/credential"
	"github.com/majorcontext/zedlogin/internal/exchange"
	"github.com/majorcontext/zedlogin/internal/metrics"
	"github.com/majorcontext/zedlogin/internal/ui"
)

const (
	defaultAccountsFile = "github_accounts.json"
	defaultOutputFile   = "accounts.json"
)

var runFlags struct {
	output         string
	headless       bool
	execPath       string
	timeout        time.Duration
	delay          time.Duration
	promptPassword bool
	metricsFile    string
	noAudit        bool
}

var runCmd = &cobra.Command{
	Use:   "run [accounts-file]",
	Short: "Sign in every account and save the credentials",
	Long: `Sign in every account listed in accounts-file (default github_accounts.json)
and merge the credentials into the output file.

The accounts file is a JSON or YAML list. Each entry has a username and
either a password or a GitHub session cookie, plus an optional display name:

  [
    {"username": "user1", "password": "pass1", "name": "work"},
    {"username": "user2", "cookie": "user_session=abc123"},
    {"username": "user3", "password": "op://Private/GitHub user3/password"}
  ]

Passwords and cookies may be secret references (op://, ssm://, keyring://,
awssm://, env://). If accounts-file does not exist an example is created.

Accounts that need two-factor authentication are skipped.

Examples:
  zedlogin run
  zedlogin run team.yaml --output ~/zed2api/accounts.json --headless
  zedlogin run --prompt-password`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringVarP(&runFlags.output, "output", "o", defaultOutputFile, "credential store to merge results into")
	f.BoolVar(&runFlags.headless, "headless", false, "run Chrome without a window (config: browser.headless)")
	f.StringVar(&runFlags.execPath, "browser", "", "path to the Chrome executable (config: browser.exec_path)")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "how long to wait for each callback (config: exchange.callback_timeout)")
	f.DurationVar(&runFlags.delay, "delay", 0, "pause between accounts (config: exchange.account_delay)")
	f.BoolVar(&runFlags.promptPassword, "prompt-password", false, "ask for missing passwords instead of skipping the account")
	f.StringVar(&runFlags.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile (config: metrics.textfile)")
	f.BoolVar(&runFlags.noAudit, "no-audit", false, "do not record attempts in the history database")
}

func runBatch(cmd *cobra.Command, args []string) error {
	input := defaultAccountsFile
	if len(args) > 0 {
		input = args[0]
	}

	accts, err := account.Load(input)
	if errors.Is(err, os.ErrNotExist) {
		if err := account.WriteExample(input); err != nil {
			return err
		}
		ui.Infof("%s not found; created an example. Fill in your accounts and run again.", input)
		return nil
	}
	if err != nil {
		return err
	}
	if len(accts) == 0 {
		ui.Warnf("%s lists no accounts", input)
		return nil
	}

	cfg := *globalCfg
	applyRunFlags(cmd, &cfg)

	ctx := cmd.Context()
	chrome, err := browser.Start(ctx, browser.Options{
		Headless:    cfg.Browser.Headless,
		ExecPath:    cfg.Browser.ExecPath,
		PageTimeout: cfg.Browser.PageTimeout,
		SettleDelay: cfg.Exchange.SettleDelay,
	})
	if err != nil {
		return err
	}
	defer chrome.Close()

	exCfg := exchange.Config{
		SignInURL:       cfg.Provider.SignInURL,
		SuccessURL:      cfg.Provider.SuccessURL,
		CallbackTimeout: cfg.Exchange.CallbackTimeout,
	}
	if runFlags.promptPassword {
		exCfg.PromptPassword = newPasswordPrompter().Prompt
	}

	store := credential.NewStore(runFlags.output)
	bcfg := batch.Config{
		Delay:    cfg.Exchange.AccountDelay,
		Reporter: progress{},
	}
	if bcfg.Delay <= 0 {
		bcfg.Delay = -1
	}
	if cfg.Audit.Enabled && !runFlags.noAudit {
		hist, err := audit.OpenStore(config.HistoryPath())
		if err != nil {
			ui.Warnf("exchange history disabled: %v", err)
		} else {
			defer hist.Close()
			bcfg.Recorder = hist
		}
	}
	var reg *metrics.Registry
	if cfg.Metrics.Textfile != "" {
		reg = metrics.NewRegistry()
		bcfg.Observer = reg
	}

	ui.Section("Zed batch sign-in")
	ui.Infof("Accounts: %d", len(accts))
	ui.Infof("Output:   %s", runFlags.output)
	ui.Info("")

	sum, runErr := batch.New(exchange.New(chrome, exCfg), store, bcfg).Run(ctx, accts)

	ui.Info("")
	ui.Summary(sum.Succeeded, sum.Attempted)
	if sum.Succeeded > 0 {
		ui.Infof("Saved to %s", runFlags.output)
	}

	if reg != nil {
		if entries, err := store.List(); err == nil {
			reg.SetStored(len(entries))
		}
		if err := reg.WriteTextfile(cfg.Metrics.Textfile, time.Now()); err != nil {
			ui.Warnf("%v", err)
		}
	}
	return runErr
}

// applyRunFlags lets explicitly set flags win over config and environment.
func applyRunFlags(cmd *cobra.Command, cfg *config.GlobalConfig) {
	f := cmd.Flags()
	if f.Changed("headless") {
		cfg.Browser.Headless = runFlags.headless
	}
	if f.Changed("browser") {
		cfg.Browser.ExecPath = runFlags.execPath
	}
	if f.Changed("timeout") {
		cfg.Exchange.CallbackTimeout = runFlags.timeout
	}
	if f.Changed("delay") {
		cfg.Exchange.AccountDelay = runFlags.delay
	}
	if f.Changed("metrics-file") {
		cfg.Metrics.Textfile = runFlags.metricsFile
	}
}

// progress prints batch progress.
type progress struct{}

func (progress) Started(index, total int, acct account.Account) {
	ui.Step(index, total, "Signing in "+acct.String())
}

func (progress) Succeeded(_ account.Account, res *exchange.Result) {
	ui.OK(fmt.Sprintf("%s (user_id=%s)", res.Name, res.UserID))
}

func (progress) Failed(_ account.Account, err error) {
	ui.Fail(failureReason(err))
}

// failureReason drops the account prefix the progress line already shows.
func failureReason(err error) string {
	var exErr *exchange.Error
	if errors.As(err, &exErr) {
		if exErr.Err != nil {
			return exErr.Err.Error()
		}
		return exErr.Kind.Error()
	}
	return err.Error()
}
