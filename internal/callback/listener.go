// Package callback implements the loopback listener that receives the
// provider's native-app redirect. A Listener serves exactly one request: it
// decrypts the delivered access token with the session keypair, answers the
// browser, and hands the result back over a channel owned by the session.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/majorcontext/zedlogin/internal/keypair"
	"github.com/majorcontext/zedlogin/internal/log"
)

// DefaultSuccessURL is where the browser is sent after a successful callback.
const DefaultSuccessURL = "https://zed.dev/native_app_signin_succeeded"

// shutdownTimeout bounds how long an answered response may take to flush.
const shutdownTimeout = 5 * time.Second

var (
	// ErrTimedOut is returned when no callback arrives before the deadline.
	ErrTimedOut = errors.New("timed out waiting for sign-in callback")
	// ErrMalformedRequest is returned when the callback lacks user_id or access_token.
	ErrMalformedRequest = errors.New("callback request missing user_id or access_token")
	// ErrClosed is returned by AwaitOne on a listener that already reached a terminal state.
	ErrClosed = errors.New("callback listener closed")
)

// Decrypter turns the transported access token back into plaintext.
// *keypair.Keypair satisfies it.
type Decrypter interface {
	Decrypt(ciphertext string) ([]byte, error)
}

// Delivered is the credential carried by a well-formed callback.
type Delivered struct {
	UserID     string
	Credential json.RawMessage
}

type outcome struct {
	delivered *Delivered
	err       error
}

// Option configures a Listener.
type Option func(*Listener)

// WithSuccessURL overrides the redirect target for a successful callback.
func WithSuccessURL(u string) Option {
	return func(l *Listener) {
		if u != "" {
			l.successURL = u
		}
	}
}

// Listener is a single-use loopback callback endpoint.
type Listener struct {
	dec        Decrypter
	ln         net.Listener
	port       int
	successURL string

	mu       sync.Mutex
	answered bool
	done     bool
	results  chan outcome

	closeOnce sync.Once
	closeErr  error
}

// Start binds 127.0.0.1 at port. A port of 0 lets the OS pick one; read it
// back with Port. No request is served until AwaitOne is called.
func Start(dec Decrypter, port int, opts ...Option) (*Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("starting callback listener: %w", err)
	}

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("unexpected listener address type: %T", ln.Addr())
	}

	l := &Listener{
		dec:        dec,
		ln:         ln,
		port:       tcpAddr.Port,
		successURL: DefaultSuccessURL,
		results:    make(chan outcome, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Port returns the bound loopback port.
func (l *Listener) Port() int {
	return l.port
}

// AwaitOne serves until the first callback request has been answered, the
// timeout elapses, or ctx is cancelled. The listener is closed on return
// whatever the outcome.
func (l *Listener) AwaitOne(ctx context.Context, timeout time.Duration) (*Delivered, error) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.done = true
	l.mu.Unlock()

	server := &http.Server{
		Handler:           http.HandlerFunc(l.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(l.ln)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx) //nolint:errcheck
		l.Close()                    //nolint:errcheck
		log.Debug("callback listener closed", "port", l.port)
	}()

	log.Debug("awaiting sign-in callback", "port", l.port, "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-l.results:
		return out.delivered, out.err
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("callback server error: %w", err)
	case <-timer.C:
		return nil, ErrTimedOut
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the port. It is safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.ln.Close()
		if errors.Is(l.closeErr, net.ErrClosed) {
			l.closeErr = nil
		}
	})
	return l.closeErr
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	if l.answered {
		l.mu.Unlock()
		http.Error(w, "sign-in callback already handled", http.StatusGone)
		return
	}
	l.answered = true
	l.mu.Unlock()

	out := l.process(r)
	switch {
	case out.err == nil:
		http.Redirect(w, r, l.successURL, http.StatusFound)
	case errors.Is(out.err, ErrMalformedRequest):
		http.Error(w, "missing user_id or access_token", http.StatusBadRequest)
	default:
		http.Error(w, "could not decrypt access token", http.StatusInternalServerError)
	}
	l.results <- out
}

func (l *Listener) process(r *http.Request) outcome {
	q := r.URL.Query()
	userID := q.Get("user_id")
	token := q.Get("access_token")
	if userID == "" || token == "" {
		log.Warn("malformed sign-in callback", "path", r.URL.Path,
			"has_user_id", userID != "", "has_access_token", token != "")
		return outcome{err: ErrMalformedRequest}
	}

	plaintext, err := l.dec.Decrypt(token)
	if err != nil {
		log.Warn("sign-in callback decryption failed", "user_id", userID, "error", err)
		return outcome{err: err}
	}
	if !json.Valid(plaintext) {
		log.Warn("sign-in callback payload is not JSON", "user_id", userID)
		return outcome{err: &keypair.DecryptionError{Reason: "decrypted payload is not valid JSON"}}
	}

	log.Debug("sign-in callback received", "user_id", userID)
	return outcome{delivered: &Delivered{
		UserID:     userID,
		Credential: json.RawMessage(plaintext),
	}}
}
