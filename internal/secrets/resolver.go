// Package secrets resolves secret references found in the accounts file, so
// passwords and GitHub session cookies can live in a password manager or
// cloud secret store instead of plain JSON.
//
// A reference is a URI whose scheme names a registered backend, for example
// "op://Private/GitHub/password" or "keyring://zedlogin/octocat". Values
// without a registered scheme are treated as literals.
package secrets

import (
	"context"
	"strings"
	"sync"
)

// Resolver resolves a secret reference to its plaintext value.
type Resolver interface {
	// Scheme returns the URI scheme this resolver handles (e.g., "op", "keyring").
	Scheme() string

	// Resolve fetches the secret value for the full reference URI.
	Resolve(ctx context.Context, reference string) (string, error)
}

var (
	resolvers = make(map[string]Resolver)
	mu        sync.RWMutex
)

// Register adds a resolver to the registry, replacing any with the same scheme.
func Register(r Resolver) {
	mu.Lock()
	defer mu.Unlock()
	resolvers[r.Scheme()] = r
}

// Schemes returns the registered schemes.
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(resolvers))
	for s := range resolvers {
		out = append(out, s)
	}
	return out
}

// Resolve dispatches to the appropriate resolver based on URI scheme.
func Resolve(ctx context.Context, reference string) (string, error) {
	scheme := parseScheme(reference)
	if scheme == "" {
		return "", &InvalidReferenceError{Reference: reference, Reason: "missing scheme"}
	}

	mu.RLock()
	r, ok := resolvers[scheme]
	mu.RUnlock()

	if !ok {
		return "", &UnsupportedSchemeError{Scheme: scheme}
	}

	return r.Resolve(ctx, reference)
}

// IsReference reports whether value names a registered secret backend.
func IsReference(value string) bool {
	scheme := parseScheme(value)
	if scheme == "" {
		return false
	}
	mu.RLock()
	defer mu.RUnlock()
	_, ok := resolvers[scheme]
	return ok
}

// ResolveValue resolves value if it is a reference and returns it unchanged
// otherwise.
func ResolveValue(ctx context.Context, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	return Resolve(ctx, value)
}

// parseScheme extracts the scheme from a URI (e.g., "op" from "op://vault/item").
func parseScheme(ref string) string {
	idx := strings.Index(ref, "://")
	if idx < 1 {
		return ""
	}
	scheme := ref[:idx]
	for _, c := range scheme {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return ""
		}
	}
	return scheme
}

// clearRegistry removes all registered resolvers. For testing only.
func clearRegistry() {
	mu.Lock()
	defer mu.Unlock()
	resolvers = make(map[string]Resolver)
}
