package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/majorcontext/zedlogin/internal/callback"
	"github.com/majorcontext/zedlogin/internal/keypair"
)

// Failure kinds. An *Error matches its kind with errors.Is.
var (
	// ErrMissingCredentials means the provider asked for a password and the
	// account has none.
	ErrMissingCredentials = errors.New("password required but not configured")
	// ErrUnsupportedMFA means the provider asked for a second factor.
	ErrUnsupportedMFA = errors.New("two-factor authentication is not supported")
	// ErrAuthenticationRejected means the login form came back after submission.
	ErrAuthenticationRejected = errors.New("credentials rejected by provider")
	// ErrUnrecognizedPage means the browser reached a page the classifier
	// does not know.
	ErrUnrecognizedPage = errors.New("unrecognized page")
	// ErrDecryption means the callback carried a token this session could not decrypt.
	ErrDecryption = errors.New("access token decryption failed")
	// ErrSecretResolution means a password or cookie reference could not be resolved.
	ErrSecretResolution = errors.New("secret resolution failed")
	// ErrBrowser covers browser collaborator failures.
	ErrBrowser = errors.New("browser error")
	// ErrFatal marks failures that abort the whole batch, such as being
	// unable to generate a keypair or bind a loopback port.
	ErrFatal = errors.New("fatal error")

	// ErrNoConsentControl is returned by Page.ConfirmConsent when the page has
	// nothing to click. The orchestrator tolerates it.
	ErrNoConsentControl = errors.New("no consent control on page")
)

// Error is a failed exchange for one account.
type Error struct {
	// Account identifies the account without secrets (account.Account.String).
	Account   string
	SessionID string
	Kind      error
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("sign-in for %s: %v", e.Account, e.Kind)
	}
	return fmt.Sprintf("sign-in for %s: %v", e.Account, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsFatal reports whether err should abort the batch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// kindOf maps an error from the browser drive or the callback wait onto a
// failure kind.
func kindOf(err error) error {
	var decErr *keypair.DecryptionError
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return ErrMissingCredentials
	case errors.Is(err, ErrUnsupportedMFA):
		return ErrUnsupportedMFA
	case errors.Is(err, ErrAuthenticationRejected):
		return ErrAuthenticationRejected
	case errors.Is(err, ErrUnrecognizedPage):
		return ErrUnrecognizedPage
	case errors.Is(err, ErrFatal):
		return ErrFatal
	case errors.Is(err, callback.ErrTimedOut):
		return callback.ErrTimedOut
	case errors.Is(err, callback.ErrMalformedRequest):
		return callback.ErrMalformedRequest
	case errors.As(err, &decErr):
		return ErrDecryption
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	default:
		return ErrBrowser
	}
}

// Outcome names the result of an exchange for history and metrics labels.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	var decErr *keypair.DecryptionError
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrUnsupportedMFA):
		return "unsupported_mfa"
	case errors.Is(err, ErrAuthenticationRejected):
		return "authentication_rejected"
	case errors.Is(err, ErrUnrecognizedPage):
		return "unrecognized_page"
	case errors.Is(err, callback.ErrTimedOut):
		return "timed_out"
	case errors.Is(err, callback.ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrDecryption), errors.As(err, &decErr):
		return "decryption_error"
	case errors.Is(err, ErrSecretResolution):
		return "secret_resolution_failed"
	case errors.Is(err, ErrFatal):
		return "fatal"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrBrowser):
		return "browser_error"
	default:
		return "error"
	}
}
