package exchange

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/zedlogin/internal/account"
	"github.com/majorcontext/zedlogin/internal/callback"
	"github.com/majorcontext/zedlogin/internal/keypair"
)

const payload = `{"version":2,"id":"client_token_1","token":"zed-secret"}`

func newTestOrchestrator(b Browser) *Orchestrator {
	return New(b, Config{CallbackTimeout: 3 * time.Second})
}

func requireKind(t *testing.T, err error, kind error) *Error {
	t.Helper()
	require.Error(t, err)
	var exErr *Error
	require.True(t, errors.As(err, &exErr), "expected *Error, got %T: %v", err, err)
	assert.ErrorIs(t, err, kind)
	assert.Equal(t, kind, exErr.Kind)
	assert.NotEmpty(t, exErr.SessionID)
	return exErr
}

func requirePortFree(t *testing.T, port int) {
	t.Helper()
	require.NotZero(t, port)
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err, "callback port should be released")
	ln.Close()
}

func TestExchange_CookieAlreadyAuthorized(t *testing.T) {
	b := &fakeBrowser{deliver: deliverOnNavigate, userID: "u1", payload: payload}
	acct := account.Account{Username: "octo", Cookie: "user_session=abc"}

	res, err := newTestOrchestrator(b).Exchange(context.Background(), acct)
	require.NoError(t, err)

	assert.Equal(t, "account_u1", res.Name)
	assert.Equal(t, "u1", res.UserID)
	assert.JSONEq(t, payload, string(res.Credential))
	assert.NotEmpty(t, res.SessionID)

	require.Len(t, b.cookies, 1)
	assert.Equal(t, "user_session", b.cookies[0].Name)
	assert.Equal(t, "abc", b.cookies[0].Value)
	assert.Equal(t, ".github.com", b.cookies[0].Domain)

	logins, _, closed, port := b.snapshot()
	assert.Empty(t, logins)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 302, b.callbackSC)
	requirePortFree(t, port)
}

func TestExchange_PasswordLoginThenConsent(t *testing.T) {
	b := &fakeBrowser{
		afterNavigate: githubLogin,
		afterLogin:    githubAuthorize,
		deliver:       deliverOnConsent,
		userID:        "42",
		payload:       payload,
	}
	acct := account.Account{Username: "octo", Password: "hunter2", Name: "work"}

	res, err := newTestOrchestrator(b).Exchange(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "work", res.Name)
	assert.Equal(t, "42", res.UserID)

	logins, consents, closed, _ := b.snapshot()
	assert.Equal(t, [][2]string{{"octo", "hunter2"}}, logins)
	assert.Equal(t, 1, consents)
	assert.Equal(t, 1, closed)
}

func TestExchange_PageOpenUntilCallback(t *testing.T) {
	// Consent returns to the authorize page and the redirect lands later,
	// after the drive has already finished.
	b := &fakeBrowser{
		afterNavigate: githubAuthorize,
		afterConsent:  githubAuthorize,
		deliver:       deliverAfterConsent,
		userID:        "u1",
		payload:       payload,
	}

	res, err := newTestOrchestrator(b).Exchange(context.Background(), account.Account{Username: "octo", Cookie: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)

	<-b.lateDone
	_, consents, closed, port := b.snapshot()
	assert.Equal(t, 1, consents)
	assert.Equal(t, 1, closed)
	assert.False(t, b.dropped, "browser context closed before the redirect completed")
	requirePortFree(t, port)
}

func TestExchange_ConsentControlMissing(t *testing.T) {
	b := &fakeBrowser{
		afterNavigate:    githubAuthorize,
		deliver:          deliverOnConsent,
		noConsentControl: true,
		userID:           "7",
		payload:          `{}`,
	}

	res, err := newTestOrchestrator(b).Exchange(context.Background(), account.Account{Username: "octo", Cookie: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "7", res.UserID)
}

func TestExchange_MissingCredentialsNeverSubmits(t *testing.T) {
	b := &fakeBrowser{afterNavigate: githubLogin, deliver: deliverNever}
	acct := account.Account{Username: "octo", Cookie: "user_session=expired"}

	_, err := newTestOrchestrator(b).Exchange(context.Background(), acct)
	requireKind(t, err, ErrMissingCredentials)

	logins, _, closed, port := b.snapshot()
	assert.Empty(t, logins, "form must not be submitted without a password")
	assert.Equal(t, 1, closed)
	requirePortFree(t, port)
}

func TestExchange_PromptPassword(t *testing.T) {
	b := &fakeBrowser{
		afterNavigate: githubLogin,
		deliver:       deliverOnLogin,
		userID:        "u9",
		payload:       `{"a":1}`,
	}
	var prompted string
	o := New(b, Config{
		CallbackTimeout: 3 * time.Second,
		PromptPassword: func(_ context.Context, acct account.Account) (string, error) {
			prompted = acct.Username
			return "typed", nil
		},
	})

	res, err := o.Exchange(context.Background(), account.Account{Username: "octo"})
	require.NoError(t, err)
	assert.Equal(t, "u9", res.UserID)
	assert.Equal(t, "octo", prompted)

	logins, _, _, _ := b.snapshot()
	assert.Equal(t, [][2]string{{"octo", "typed"}}, logins)
}

func TestExchange_PromptPasswordEmpty(t *testing.T) {
	b := &fakeBrowser{afterNavigate: githubLogin}
	o := New(b, Config{
		CallbackTimeout: time.Second,
		PromptPassword:  func(context.Context, account.Account) (string, error) { return "", nil },
	})

	_, err := o.Exchange(context.Background(), account.Account{Username: "octo"})
	requireKind(t, err, ErrMissingCredentials)

	logins, _, _, _ := b.snapshot()
	assert.Empty(t, logins)
}

func TestExchange_BrowserFailures(t *testing.T) {
	tests := []struct {
		name       string
		browser    *fakeBrowser
		wantKind   error
		wantLogins int
	}{
		{
			name:       "two factor",
			browser:    &fakeBrowser{afterNavigate: githubLogin, afterLogin: githubTwoFactor},
			wantKind:   ErrUnsupportedMFA,
			wantLogins: 1,
		},
		{
			name:       "rejected",
			browser:    &fakeBrowser{afterNavigate: githubLogin, afterLogin: githubSession},
			wantKind:   ErrAuthenticationRejected,
			wantLogins: 1,
		},
		{
			name:     "unrecognized",
			browser:  &fakeBrowser{afterNavigate: "https://example.com/captcha?challenge=1"},
			wantKind: ErrUnrecognizedPage,
		},
		{
			name:     "browser unavailable",
			browser:  &fakeBrowser{newContextErr: errors.New("chrome not found")},
			wantKind: ErrBrowser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := account.Account{Username: "octo", Password: "hunter2"}
			start := time.Now()

			_, err := newTestOrchestrator(tt.browser).Exchange(context.Background(), acct)
			requireKind(t, err, tt.wantKind)

			// A browser failure cancels the callback wait instead of running
			// out the deadline.
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.NotContains(t, err.Error(), "hunter2")
			assert.NotContains(t, err.Error(), "challenge=1")

			logins, _, _, _ := tt.browser.snapshot()
			assert.Len(t, logins, tt.wantLogins)
		})
	}
}

func TestExchange_TimedOut(t *testing.T) {
	b := &fakeBrowser{afterNavigate: "https://zed.dev/native_app_signin", deliver: deliverNever}
	o := New(b, Config{CallbackTimeout: 100 * time.Millisecond})

	_, err := o.Exchange(context.Background(), account.Account{Username: "octo", Cookie: "abc"})
	requireKind(t, err, callback.ErrTimedOut)

	_, _, closed, port := b.snapshot()
	assert.Equal(t, 1, closed)
	requirePortFree(t, port)
}

func TestExchange_Cancelled(t *testing.T) {
	b := &fakeBrowser{afterNavigate: "https://zed.dev/native_app_signin"}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestOrchestrator(b).Exchange(ctx, account.Account{Username: "octo", Cookie: "abc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsFatal(err))
}

func TestExchange_KeypairFailureIsFatal(t *testing.T) {
	o := newTestOrchestrator(&fakeBrowser{})
	o.newKeypair = func() (*keypair.Keypair, error) { return nil, errors.New("entropy exhausted") }

	_, err := o.Exchange(context.Background(), account.Account{Username: "octo"})
	requireKind(t, err, ErrFatal)
	assert.True(t, IsFatal(err))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{&Error{Kind: ErrMissingCredentials, Err: ErrMissingCredentials}, "missing_credentials"},
		{&Error{Kind: ErrUnsupportedMFA, Err: ErrUnsupportedMFA}, "unsupported_mfa"},
		{&Error{Kind: callback.ErrTimedOut, Err: callback.ErrTimedOut}, "timed_out"},
		{&Error{Kind: ErrDecryption, Err: &keypair.DecryptionError{Reason: "x"}}, "decryption_error"},
		{&keypair.DecryptionError{Reason: "x"}, "decryption_error"},
		{&Error{Kind: ErrFatal, Err: errors.New("boom")}, "fatal"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err), "Outcome(%v)", tt.err)
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Account: "octo (work)", Kind: ErrUnsupportedMFA, Err: ErrUnsupportedMFA}
	assert.Equal(t, "sign-in for octo (work): two-factor authentication is not supported", err.Error())
}
