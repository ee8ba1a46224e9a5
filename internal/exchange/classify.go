package exchange

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PageKind is the classifier's guess at what a browser location is.
type PageKind int

const (
	PageUnknown PageKind = iota
	PageLogin
	PageTwoFactor
	PageConsent
	PageProvider
	PageLoopback
)

func (k PageKind) String() string {
	switch k {
	case PageLogin:
		return "login"
	case PageTwoFactor:
		return "two_factor"
	case PageConsent:
		return "consent"
	case PageProvider:
		return "provider"
	case PageLoopback:
		return "loopback"
	default:
		return "unknown"
	}
}

// Classify inspects a location URL. It is a heuristic over GitHub and Zed
// URL layouts and will need updating if either changes.
func Classify(location string) PageKind {
	u, err := url.Parse(location)
	if err != nil {
		return PageUnknown
	}
	host := strings.ToLower(u.Hostname())
	path := strings.TrimSuffix(u.Path, "/")

	switch {
	case host == "127.0.0.1" || host == "localhost" || host == "::1":
		return PageLoopback
	case host == "zed.dev" || strings.HasSuffix(host, ".zed.dev"):
		return PageProvider
	case host == "github.com" || host == "www.github.com":
	default:
		return PageUnknown
	}

	switch {
	case strings.Contains(path, "two-factor"),
		strings.HasPrefix(path, "/sessions/verified-device"):
		return PageTwoFactor
	case path == "/login/oauth/authorize":
		return PageConsent
	case path == "/login", path == "/session":
		return PageLogin
	default:
		return PageUnknown
	}
}

// BuildAuthURL appends the native-app query parameters to base.
func BuildAuthURL(base string, port int, publicKey string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing sign-in URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("sign-in URL %q must be absolute", base)
	}

	q := u.Query()
	q.Set("native_app_port", strconv.Itoa(port))
	q.Set("native_app_public_key", publicKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// displayLocation drops the query and fragment so logs never carry callback
// parameters.
func displayLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return "<unparseable>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
