package secrets

import (
	"context"
	"strings"
)

// OnePasswordResolver resolves op://vault/item/field references with the op CLI.
type OnePasswordResolver struct{}

// Scheme returns "op".
func (r *OnePasswordResolver) Scheme() string {
	return "op"
}

// Resolve fetches a secret using `op read`.
func (r *OnePasswordResolver) Resolve(ctx context.Context, reference string) (string, error) {
	return runCLI(ctx, "op", "1Password",
		"Install from https://1password.com/downloads/command-line/\nThen run: op signin",
		func(stderr []byte) error { return r.parseOpError(stderr, reference) },
		"read", reference)
}

// parseOpError converts op CLI errors to actionable error types.
func (r *OnePasswordResolver) parseOpError(stderr []byte, reference string) error {
	msg := string(stderr)

	switch {
	case strings.Contains(msg, "not currently signed in") || strings.Contains(msg, "not signed in"):
		return &BackendError{
			Backend:   "1Password",
			Reference: reference,
			Reason:    "not signed in",
			Fix:       "Run: eval $(op signin)\n\nOr for automation, set OP_SERVICE_ACCOUNT_TOKEN.",
		}
	case strings.Contains(msg, "isn't an item") || strings.Contains(msg, "could not be found"):
		return &NotFoundError{Reference: reference, Backend: "1Password"}
	case strings.Contains(msg, "isn't a vault"):
		vault := ""
		if parts := strings.SplitN(strings.TrimPrefix(reference, "op://"), "/", 2); len(parts) > 0 {
			vault = parts[0]
		}
		return &BackendError{
			Backend:   "1Password",
			Reference: reference,
			Reason:    "vault not found",
			Fix:       "Vault \"" + vault + "\" not found.\n\nList available vaults with: op vault list",
		}
	}

	return &BackendError{
		Backend:   "1Password",
		Reference: reference,
		Reason:    strings.TrimSpace(msg),
	}
}

func init() {
	Register(&OnePasswordResolver{})
}
