package exchange

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/majorcontext/zedlogin/internal/account"
)

const (
	githubLogin     = "https://github.com/login?client_id=abc&return_to=%2Flogin%2Foauth%2Fauthorize"
	githubSession   = "https://github.com/session"
	githubTwoFactor = "https://github.com/sessions/two-factor/app"
	githubAuthorize = "https://github.com/login/oauth/authorize?client_id=abc"
	zedSucceeded    = "https://zed.dev/native_app_signin_succeeded"
)

// deliverOn names the browser action after which the fake provider calls
// the loopback callback.
type deliverOn int

const (
	deliverNever deliverOn = iota
	deliverOnNavigate
	deliverOnLogin
	deliverOnConsent
	// deliverAfterConsent lets ConfirmConsent return first and calls the
	// loopback shortly afterwards, unless the page was closed by then.
	deliverAfterConsent
)

const lateRedirect = 300 * time.Millisecond

// fakeBrowser plays the provider: each action moves to a scripted location,
// and at the scripted point it encrypts payload under the public key from the
// authorization URL and calls the loopback port, as the real redirect would.
type fakeBrowser struct {
	afterNavigate    string
	afterLogin       string
	afterConsent     string
	noConsentControl bool
	deliver          deliverOn
	userID           string
	payload          string
	newContextErr    error

	mu         sync.Mutex
	cookies    []account.Cookie
	logins     [][2]string
	consents   int
	closed     int
	port       int
	callbackSC int
	dropped    bool
	lateDone   chan struct{}
}

func (b *fakeBrowser) NewContext(_ context.Context, cookies []account.Cookie) (Page, error) {
	if b.newContextErr != nil {
		return nil, b.newContextErr
	}
	b.mu.Lock()
	b.cookies = cookies
	b.mu.Unlock()
	return &fakePage{b: b}, nil
}

func (b *fakeBrowser) snapshot() (logins [][2]string, consents, closed, port int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][2]string(nil), b.logins...), b.consents, b.closed, b.port
}

type fakePage struct {
	b   *fakeBrowser
	pub *rsa.PublicKey
	loc string
}

func (p *fakePage) Navigate(_ context.Context, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	port, err := strconv.Atoi(u.Query().Get("native_app_port"))
	if err != nil {
		return "", fmt.Errorf("bad native_app_port: %w", err)
	}
	der, err := base64.RawURLEncoding.DecodeString(u.Query().Get("native_app_public_key"))
	if err != nil {
		return "", fmt.Errorf("bad native_app_public_key: %w", err)
	}
	if p.pub, err = x509.ParsePKCS1PublicKey(der); err != nil {
		return "", err
	}

	p.b.mu.Lock()
	p.b.port = port
	p.b.mu.Unlock()

	return p.step(deliverOnNavigate, p.b.afterNavigate)
}

func (p *fakePage) FillCredentialForm(_ context.Context, username, password string) (string, error) {
	p.b.mu.Lock()
	p.b.logins = append(p.b.logins, [2]string{username, password})
	p.b.mu.Unlock()
	return p.step(deliverOnLogin, p.b.afterLogin)
}

func (p *fakePage) ConfirmConsent(context.Context) (string, error) {
	p.b.mu.Lock()
	p.b.consents++
	p.b.mu.Unlock()
	loc, err := p.step(deliverOnConsent, p.b.afterConsent)
	if err != nil {
		return "", err
	}
	if p.b.noConsentControl {
		return "", ErrNoConsentControl
	}
	return loc, nil
}

func (p *fakePage) Location(context.Context) (string, error) {
	return p.loc, nil
}

func (p *fakePage) Close() error {
	p.b.mu.Lock()
	p.b.closed++
	p.b.mu.Unlock()
	return nil
}

func (p *fakePage) step(at deliverOn, next string) (string, error) {
	if at == deliverOnConsent && p.b.deliver == deliverAfterConsent {
		p.b.mu.Lock()
		p.b.lateDone = make(chan struct{})
		p.b.mu.Unlock()
		go p.deliverLate()
		p.loc = next
		return p.loc, nil
	}
	if p.b.deliver == at {
		if err := p.callLoopback(); err != nil {
			return "", err
		}
		p.loc = zedSucceeded
		return p.loc, nil
	}
	p.loc = next
	return p.loc, nil
}

func (p *fakePage) deliverLate() {
	defer close(p.b.lateDone)
	time.Sleep(lateRedirect)

	p.b.mu.Lock()
	closed := p.b.closed > 0
	p.b.dropped = closed
	p.b.mu.Unlock()
	if closed {
		// A closed tab never completes its redirect.
		return
	}
	p.callLoopback() //nolint:errcheck
}

func (p *fakePage) callLoopback() error {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, p.pub, []byte(p.b.payload), nil)
	if err != nil {
		return err
	}
	q := url.Values{
		"user_id":      {p.b.userID},
		"access_token": {base64.RawURLEncoding.EncodeToString(ct)},
	}

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		Timeout:       5 * time.Second,
	}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/?%s", p.b.port, q.Encode()))
	if err != nil {
		return err
	}
	resp.Body.Close()

	p.b.mu.Lock()
	p.b.callbackSC = resp.StatusCode
	p.b.mu.Unlock()
	return nil
}
