// Package account loads the list of GitHub accounts to sign in with.
//
// The input file is a JSON or YAML list:
//
//	[
//	  {"username": "user1", "password": "pass1", "name": "work"},
//	  {"username": "user2", "cookie": "user_session=abc123"},
//	  {"username": "user3", "password": "op://Private/GitHub/password"}
//	]
//
// password and cookie may be secret references resolved by internal/secrets.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/majorcontext/zedlogin/internal/secrets"
)

// Session cookie defaults for GitHub.
const (
	DefaultCookieName = "user_session"
	CookieDomain      = ".github.com"
	CookiePath        = "/"
)

// Account describes one GitHub identity to exchange for a Zed credential.
type Account struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Cookie   string `json:"cookie,omitempty" yaml:"cookie,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Cookie is a browser cookie to inject before navigation.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	HTTPOnly bool
	Secure   bool
}

// String identifies the account in logs. It never includes secrets.
func (a Account) String() string {
	if a.Name != "" && a.Name != a.Username {
		return a.Username + " (" + a.Name + ")"
	}
	return a.Username
}

// HasPassword reports whether a password is configured.
func (a Account) HasPassword() bool {
	return a.Password != ""
}

// DisplayName returns the store key for this account: the configured name,
// or account_<userID> when none is set.
func (a Account) DisplayName(userID string) string {
	if a.Name != "" {
		return a.Name
	}
	return "account_" + userID
}

// SessionCookie parses the configured cookie. "user_session=xxx" and a bare
// "xxx" are both accepted; the bare form uses DefaultCookieName.
func (a Account) SessionCookie() (Cookie, bool) {
	raw := strings.TrimSpace(a.Cookie)
	if raw == "" {
		return Cookie{}, false
	}
	name, value := DefaultCookieName, raw
	if n, v, ok := strings.Cut(raw, "="); ok {
		name, value = strings.TrimSpace(n), strings.TrimSpace(v)
	}
	return Cookie{
		Name:     name,
		Value:    value,
		Domain:   CookieDomain,
		Path:     CookiePath,
		HTTPOnly: true,
		Secure:   true,
	}, true
}

// Validate checks the fields required for a sign-in attempt.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Username) == "" {
		return errors.New("username is required")
	}
	return nil
}

// ResolveSecrets returns a copy with secret references in Password and
// Cookie replaced by their values.
func (a Account) ResolveSecrets(ctx context.Context) (Account, error) {
	var err error
	if a.Password, err = secrets.ResolveValue(ctx, a.Password); err != nil {
		return a, fmt.Errorf("resolving password for %s: %w", a.Username, err)
	}
	if a.Cookie, err = secrets.ResolveValue(ctx, a.Cookie); err != nil {
		return a, fmt.Errorf("resolving cookie for %s: %w", a.Username, err)
	}
	return a, nil
}

// Load reads an accounts file. Files ending in .yaml or .yml are parsed as
// YAML, everything else as JSON.
func Load(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading accounts file: %w", err)
	}

	var accts []Account
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &accts)
	default:
		err = json.Unmarshal(data, &accts)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing accounts file %s: %w", path, err)
	}

	for i, a := range accts {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("account #%d in %s: %w", i+1, path, err)
		}
	}
	return accts, nil
}

// Example is the template written by WriteExample.
var Example = []Account{
	{Username: "github_user1", Password: "password1", Name: "account1"},
	{Username: "github_user2", Cookie: "user_session=abc123", Name: "account2"},
	{Username: "github_user3", Password: "keyring://zedlogin/github_user3"},
}

// WriteExample creates path with the Example accounts. It fails with an
// error satisfying errors.Is(err, os.ErrExist) if the file already exists.
func WriteExample(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(Example)
	default:
		data, err = json.MarshalIndent(Example, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encoding example accounts: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
