package secrets

import (
	"context"
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringAPI is the subset of go-keyring used here, swappable in tests.
type keyringAPI interface {
	Get(service, user string) (string, error)
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// KeyringResolver resolves keyring://service/account references from the
// system keychain (macOS Keychain, Secret Service, Windows Credential Manager).
type KeyringResolver struct {
	kr keyringAPI
}

// Scheme returns "keyring".
func (r *KeyringResolver) Scheme() string {
	return "keyring"
}

// Resolve reads the keychain item for service and account.
func (r *KeyringResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	service, account, err := parseKeyringReference(reference)
	if err != nil {
		return "", err
	}

	kr := r.kr
	if kr == nil {
		kr = osKeyring{}
	}
	val, err := kr.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", &NotFoundError{Reference: reference, Backend: "system keychain"}
	}
	if err != nil {
		return "", &BackendError{
			Backend:   "system keychain",
			Reference: reference,
			Reason:    err.Error(),
			Fix:       "On Linux a Secret Service provider (GNOME Keyring, KWallet) must be running.",
			Err:       err,
		}
	}
	return val, nil
}

// parseKeyringReference splits keyring://service/account. The account is
// everything after the first slash so e-mail style usernames survive.
func parseKeyringReference(ref string) (service, account string, err error) {
	rest, ok := strings.CutPrefix(ref, "keyring://")
	if !ok {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "expected keyring:// URI"}
	}
	service, account, ok = strings.Cut(rest, "/")
	if !ok || service == "" || account == "" {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "expected keyring://service/account"}
	}
	return service, account, nil
}

func init() {
	Register(&KeyringResolver{})
}
