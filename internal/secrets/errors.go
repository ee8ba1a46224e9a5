package secrets

import "fmt"

// The errors below describe why an account's password or session cookie
// reference could not be turned into a value. They name the reference and
// the backend so the user can fix the accounts file; the value itself never
// appears in them.

// UnsupportedSchemeError is returned for a reference whose scheme has no
// registered resolver, e.g. "vault://...".
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("no resolver for %s:// references", e.Scheme)
}

// InvalidReferenceError is returned when a reference cannot be parsed.
type InvalidReferenceError struct {
	Reference string
	Reason    string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("bad secret reference %q: %s", e.Reference, e.Reason)
}

// NotFoundError is returned when the backend answered but holds nothing at
// Reference.
type NotFoundError struct {
	Reference string
	Backend   string
}

func (e *NotFoundError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("nothing stored at %s", e.Reference)
	}
	return fmt.Sprintf("nothing stored at %s in %s", e.Reference, e.Backend)
}

// BackendError is returned when the backend could not be asked at all:
// missing CLI, no session, denied access. Fix is a hint printed under the
// message.
type BackendError struct {
	Backend   string
	Reference string
	Reason    string
	Fix       string
	Err       error
}

func (e *BackendError) Error() string {
	msg := e.Backend + ": " + e.Reason
	if e.Reference != "" {
		msg = fmt.Sprintf("%s (resolving %s)", msg, e.Reference)
	}
	if e.Fix != "" {
		msg += "\n\n  " + e.Fix
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }
