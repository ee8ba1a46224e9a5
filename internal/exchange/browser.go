package exchange

import (
	"context"

	"github.com/majorcontext/zedlogin/internal/account"
)

// Browser opens isolated browsing contexts. internal/browser provides the
// chromedp implementation.
type Browser interface {
	// NewContext opens a fresh context with cookies installed before any
	// navigation.
	NewContext(ctx context.Context, cookies []account.Cookie) (Page, error)
}

// Page is one browsing context. Every action reports the location the page
// settled on afterwards.
type Page interface {
	Navigate(ctx context.Context, url string) (string, error)
	FillCredentialForm(ctx context.Context, username, password string) (string, error)
	// ConfirmConsent clicks the authorization button. It returns
	// ErrNoConsentControl when there is none.
	ConfirmConsent(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Close() error
}
