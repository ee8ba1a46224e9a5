// Package browser implements exchange.Browser on top of a Chrome instance
// controlled with chromedp. One Chrome process serves a whole batch; every
// exchange gets its own incognito-style browser context so cookies never
// leak between accounts.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/majorcontext/zedlogin/internal/account"
	"github.com/majorcontext/zedlogin/internal/exchange"
	"github.com/majorcontext/zedlogin/internal/log"
)

// Selectors for GitHub's login and OAuth consent pages.
const (
	usernameSelector = `#login_field`
	passwordSelector = `#password`
	submitSelector   = `input[type="submit"]`
	consentSelector  = `button[name="authorize"]`
	// consentXPath matches the button by label when it has no name.
	consentXPath     = `//button[contains(normalize-space(.), "Authorize")]`
)

// Defaults for Options.
const (
	DefaultPageTimeout = 60 * time.Second
	DefaultSettleDelay = 2 * time.Second
)

// Options configures the Chrome instance.
type Options struct {
	Headless bool
	// ExecPath overrides Chrome discovery.
	ExecPath string
	// PageTimeout bounds each page action.
	PageTimeout time.Duration
	// SettleDelay is waited after each navigation so client-side redirects
	// finish before the location is read.
	SettleDelay time.Duration
}

// Chrome is a running browser.
type Chrome struct {
	opts          Options
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

var _ exchange.Browser = (*Chrome)(nil)

// Start launches Chrome. Call Close when done.
func Start(ctx context.Context, opts Options) (*Chrome, error) {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultPageTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, _ ...any) {
			// Arguments can hold raw protocol messages with cookies.
			log.Debug("browser protocol error", "format", format)
		}))

	// The first Run starts the process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	log.Debug("browser started", "headless", opts.Headless, "exec_path", opts.ExecPath)
	return &Chrome{
		opts:          opts,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return allocOpts
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	err := chromedp.Cancel(c.browserCtx)
	c.cancelBrowser()
	c.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// NewContext opens a tab in a fresh browser context and installs cookies.
func (c *Chrome) NewContext(ctx context.Context, cookies []account.Cookie) (exchange.Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithNewBrowserContext())
	p := &page{ctx: tabCtx, cancel: cancel, opts: c.opts}

	// Create the tab on its own context; a tab first used through a
	// timeout-derived context is torn down with it.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("opening browser context: %w", err)
	}

	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range cookies {
			err := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(ck.Path).
				WithHTTPOnly(ck.HTTPOnly).
				WithSecure(ck.Secure).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("setting cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	}))
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

type page struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
}

// run executes actions on the tab, bounded by the page timeout and by the
// caller's ctx.
func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.opts.PageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *page) settleAndLocate(loc *string) chromedp.Tasks {
	tasks := chromedp.Tasks{}
	if p.opts.SettleDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(p.opts.SettleDelay))
	}
	return append(tasks, chromedp.Location(loc))
}

func (p *page) Navigate(ctx context.Context, url string) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Navigate(url), p.settleAndLocate(&loc))
	if err != nil {
		return "", fmt.Errorf("navigating: %w", err)
	}
	return loc, nil
}

func (p *page) FillCredentialForm(ctx context.Context, username, password string) (string, error) {
	var loc string
	err := p.run(ctx,
		chromedp.WaitVisible(usernameSelector, chromedp.ByQuery),
		chromedp.SetValue(usernameSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(usernameSelector, username, chromedp.ByQuery),
		chromedp.SetValue(passwordSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(passwordSelector, password, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
		p.settleAndLocate(&loc),
	)
	if err != nil {
		return "", fmt.Errorf("filling login form: %w", err)
	}
	return loc, nil
}

func (p *page) ConfirmConsent(ctx context.Context) (string, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(consentSelector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return "", fmt.Errorf("looking for consent button: %w", err)
	}
	if len(nodes) == 0 {
		if err := p.run(ctx, chromedp.Nodes(consentXPath, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
			return "", fmt.Errorf("looking for consent button: %w", err)
		}
	}
	if len(nodes) == 0 {
		return "", exchange.ErrNoConsentControl
	}

	var loc string
	err := p.run(ctx, chromedp.MouseClickNode(nodes[0]), p.settleAndLocate(&loc))
	if err != nil {
		return "", fmt.Errorf("clicking consent button: %w", err)
	}
	return loc, nil
}

func (p *page) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return loc, nil
}

// Close disposes of the tab and its browser context.
func (p *page) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
