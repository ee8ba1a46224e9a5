// Package exchange drives one account through the native-app sign-in
// handshake: it presents an ephemeral public key to the provider, walks the
// browser through login and consent, and collects the encrypted credential
// the provider sends to a loopback callback.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/majorcontext/zedlogin/internal/account"
	"github.com/majorcontext/zedlogin/internal/callback"
	"github.com/majorcontext/zedlogin/internal/credential"
	"github.com/majorcontext/zedlogin/internal/keypair"
	"github.com/majorcontext/zedlogin/internal/log"
)

// Defaults for Config.
const (
	DefaultSignInURL       = "https://zed.dev/native_app_signin"
	DefaultCallbackTimeout = 2 * time.Minute
)

// maxSteps bounds how many pages the drive will walk through before giving up.
const maxSteps = 8

// Config holds orchestrator settings.
type Config struct {
	SignInURL       string
	SuccessURL      string
	CallbackTimeout time.Duration
	// PromptPassword, if set, is asked for a password when the provider shows
	// a login form for an account that has none.
	PromptPassword func(ctx context.Context, acct account.Account) (string, error)
}

// Result is a successful exchange.
type Result struct {
	credential.Result
	SessionID string
}

// Orchestrator runs exchanges one at a time.
type Orchestrator struct {
	browser    Browser
	cfg        Config
	newKeypair func() (*keypair.Keypair, error)
}

// New returns an orchestrator driving b. Zero Config fields take defaults.
func New(b Browser, cfg Config) *Orchestrator {
	if cfg.SignInURL == "" {
		cfg.SignInURL = DefaultSignInURL
	}
	if cfg.SuccessURL == "" {
		cfg.SuccessURL = callback.DefaultSuccessURL
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = DefaultCallbackTimeout
	}
	return &Orchestrator{browser: b, cfg: cfg, newKeypair: keypair.Generate}
}

// Exchange signs acct in and returns its credential. Failures are *Error.
// The listener port, keypair and browser context are released before it
// returns.
func (o *Orchestrator) Exchange(ctx context.Context, acct account.Account) (*Result, error) {
	sessionID := uuid.NewString()

	var (
		res *Result
		err error
	)
	log.WithSession(sessionID, func() {
		res, err = o.exchange(ctx, sessionID, acct)
	})
	return res, err
}

func (o *Orchestrator) exchange(ctx context.Context, sessionID string, acct account.Account) (*Result, error) {
	fail := func(kind, err error) error {
		return &Error{Account: acct.String(), SessionID: sessionID, Kind: kind, Err: err}
	}

	kp, err := o.newKeypair()
	if err != nil {
		return nil, fail(ErrFatal, fmt.Errorf("generating keypair: %w", err))
	}
	fingerprint, err := kp.Fingerprint()
	if err != nil {
		return nil, fail(ErrFatal, err)
	}

	l, err := callback.Start(kp, 0, callback.WithSuccessURL(o.cfg.SuccessURL))
	if err != nil {
		return nil, fail(ErrFatal, err)
	}
	defer l.Close()

	authURL, err := BuildAuthURL(o.cfg.SignInURL, l.Port(), kp.EncodePublicKey())
	if err != nil {
		return nil, fail(ErrFatal, err)
	}

	log.Info("starting exchange",
		"account", acct.String(),
		"port", l.Port(),
		"key_fingerprint", fingerprint)
	start := time.Now()

	page, err := o.openPage(ctx, acct)
	if err != nil {
		log.Warn("exchange failed", "account", acct.String(), "outcome", Outcome(err), "error", err)
		return nil, fail(kindOf(err), err)
	}
	// Closed only after the wait: a redirect may still be in flight when the
	// drive finishes.
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Debug("closing browser context", "error", cerr)
		}
	}()

	var delivered *callback.Delivered
	g, gctx := errgroup.WithContext(ctx)
	driveCtx, stopDrive := context.WithCancel(gctx)
	defer stopDrive()

	g.Go(func() error {
		d, err := l.AwaitOne(gctx, o.cfg.CallbackTimeout)
		if err != nil {
			return err
		}
		delivered = d
		// The browser has been redirected; nothing left for it to do.
		stopDrive()
		return nil
	})
	g.Go(func() error {
		err := o.drive(driveCtx, page, acct, authURL)
		if err != nil && driveCtx.Err() != nil && gctx.Err() == nil {
			// Stopped because the callback already arrived.
			return nil
		}
		return err
	})
	waitErr := g.Wait()

	if delivered == nil {
		if waitErr == nil {
			waitErr = callback.ErrClosed
		}
		log.Warn("exchange failed",
			"account", acct.String(),
			"outcome", Outcome(waitErr),
			"error", waitErr,
			"duration", time.Since(start))
		return nil, fail(kindOf(waitErr), waitErr)
	}
	if waitErr != nil {
		log.Debug("ignoring browser error after callback", "error", waitErr)
	}

	res := &Result{
		Result: credential.Result{
			Name:       acct.DisplayName(delivered.UserID),
			UserID:     delivered.UserID,
			Credential: delivered.Credential,
		},
		SessionID: sessionID,
	}
	log.Info("exchange succeeded",
		"account", acct.String(),
		"name", res.Name,
		"user_id", res.UserID,
		"duration", time.Since(start))
	return res, nil
}

// openPage creates the account's browser context with its session cookie.
func (o *Orchestrator) openPage(ctx context.Context, acct account.Account) (Page, error) {
	var cookies []account.Cookie
	if c, ok := acct.SessionCookie(); ok {
		cookies = append(cookies, c)
	}
	page, err := o.browser.NewContext(ctx, cookies)
	if err != nil {
		return nil, fmt.Errorf("%w: opening browser context: %w", ErrBrowser, err)
	}
	return page, nil
}

// drive walks the browser from the authorization URL until the provider
// hands off to the loopback callback or a terminal page is reached. The
// caller owns page.
func (o *Orchestrator) drive(ctx context.Context, page Page, acct account.Account, authURL string) error {
	loc, err := page.Navigate(ctx, authURL)
	if err != nil {
		return fmt.Errorf("%w: opening sign-in page: %w", ErrBrowser, err)
	}

	var submitted, consented bool
	for step := 0; step < maxSteps; step++ {
		kind := Classify(loc)
		log.Debug("browser location", "page", kind.String(), "location", displayLocation(loc))

		switch kind {
		case PageLoopback, PageProvider:
			return nil

		case PageTwoFactor:
			return ErrUnsupportedMFA

		case PageLogin:
			if submitted {
				return ErrAuthenticationRejected
			}
			password, err := o.password(ctx, acct)
			if err != nil {
				return err
			}
			submitted = true
			if loc, err = page.FillCredentialForm(ctx, acct.Username, password); err != nil {
				return fmt.Errorf("%w: submitting login form: %w", ErrBrowser, err)
			}

		case PageConsent:
			if consented {
				// Already clicked once; leave it to the callback deadline.
				return nil
			}
			consented = true
			loc, err = page.ConfirmConsent(ctx)
			if errors.Is(err, ErrNoConsentControl) {
				log.Debug("no consent control, assuming app already authorized")
				loc, err = page.Location(ctx)
			}
			if err != nil {
				return fmt.Errorf("%w: confirming consent: %w", ErrBrowser, err)
			}

		default:
			return fmt.Errorf("%w: %s", ErrUnrecognizedPage, displayLocation(loc))
		}
	}
	return fmt.Errorf("%w: no callback after %d pages, last at %s", ErrUnrecognizedPage, maxSteps, displayLocation(loc))
}

func (o *Orchestrator) password(ctx context.Context, acct account.Account) (string, error) {
	if acct.HasPassword() {
		return acct.Password, nil
	}
	if o.cfg.PromptPassword == nil {
		return "", ErrMissingCredentials
	}
	pw, err := o.cfg.PromptPassword(ctx, acct)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}
	if pw == "" {
		return "", ErrMissingCredentials
	}
	return pw, nil
}
