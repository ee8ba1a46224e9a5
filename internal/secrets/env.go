package secrets

import (
	"context"
	"os"
	"strings"
)

// EnvResolver resolves env://NAME references from the process environment.
type EnvResolver struct{}

// Scheme returns "env".
func (r *EnvResolver) Scheme() string {
	return "env"
}

// Resolve returns the value of the named variable. An unset variable is
// NotFound; a set but empty one resolves to "".
func (r *EnvResolver) Resolve(_ context.Context, reference string) (string, error) {
	name := strings.TrimPrefix(reference, "env://")
	if name == "" || strings.ContainsAny(name, "/=") {
		return "", &InvalidReferenceError{Reference: reference, Reason: "expected env://VARIABLE"}
	}
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", &NotFoundError{Reference: reference, Backend: "environment"}
	}
	return val, nil
}

func init() {
	Register(&EnvResolver{})
}
