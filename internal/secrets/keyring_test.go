package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type fakeKeyring struct {
	items map[string]string
	err   error
}

func (f *fakeKeyring) Get(service, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.items[service+"/"+user]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func TestKeyringResolver_Resolve(t *testing.T) {
	r := &KeyringResolver{kr: &fakeKeyring{items: map[string]string{
		"zedlogin/octocat@example.com": "hunter2",
	}}}

	val, err := r.Resolve(context.Background(), "keyring://zedlogin/octocat@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", val)

	_, err = r.Resolve(context.Background(), "keyring://zedlogin/nobody")
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestKeyringResolver_BackendError(t *testing.T) {
	r := &KeyringResolver{kr: &fakeKeyring{err: errors.New("dbus unavailable")}}

	_, err := r.Resolve(context.Background(), "keyring://zedlogin/octocat")
	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, "system keychain", backendErr.Backend)
}

func TestParseKeyringReference(t *testing.T) {
	service, account, err := parseKeyringReference("keyring://zedlogin/a/b")
	require.NoError(t, err)
	assert.Equal(t, "zedlogin", service)
	assert.Equal(t, "a/b", account)

	for _, bad := range []string{"keyring://", "keyring://svc", "keyring://svc/", "keyring:///acct", "op://x/y"} {
		_, _, err := parseKeyringReference(bad)
		var invalid *InvalidReferenceError
		assert.True(t, errors.As(err, &invalid), "expected InvalidReferenceError for %q", bad)
	}
}
