// Package keypair generates the ephemeral RSA keypair used for one native-app
// sign-in exchange and decrypts the access token the provider returns under it.
//
// A Keypair must never be persisted, logged, or reused across exchanges.
package keypair

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeyBits is the RSA modulus size of every generated keypair.
const KeyBits = 2048

// Keypair holds the private key for a single exchange.
type Keypair struct {
	private *rsa.PrivateKey
}

// DecryptionError is returned when a ciphertext cannot be turned back into
// text with this keypair. It never carries any plaintext.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypting access token: %s: %v", e.Reason, e.Err)
	}
	return "decrypting access token: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Generate creates a fresh RSA keypair. An error here means the system could
// not supply randomness or memory and should abort the whole batch.
func Generate() (*Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating %d-bit RSA key: %w", KeyBits, err)
	}
	return &Keypair{private: priv}, nil
}

// Public returns the public half of the keypair.
func (k *Keypair) Public() *rsa.PublicKey {
	return &k.private.PublicKey
}

// EncodePublicKey returns the DER PKCS#1 public key as unpadded base64url.
func (k *Keypair) EncodePublicKey() string {
	der := x509.MarshalPKCS1PublicKey(&k.private.PublicKey)
	return base64.RawURLEncoding.EncodeToString(der)
}

// Fingerprint returns the RFC 7638 SHA-256 thumbprint of the public key.
// It identifies the key in logs without exposing anything secret.
func (k *Keypair) Fingerprint() (string, error) {
	key, err := jwk.FromRaw(&k.private.PublicKey)
	if err != nil {
		return "", fmt.Errorf("building JWK: %w", err)
	}
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("computing thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// Decrypt restores the URL-safe, padding-stripped ciphertext and decrypts it.
// RSA-OAEP with SHA-256 is tried first, then PKCS#1 v1.5; the sender may use
// either and the order must not change.
func (k *Keypair) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := decodeURLBase64(ciphertext)
	if err != nil {
		return nil, &DecryptionError{Reason: "invalid base64url ciphertext", Err: err}
	}

	plaintext, oaepErr := rsa.DecryptOAEP(sha256.New(), nil, k.private, raw, nil)
	if oaepErr != nil {
		var pkcsErr error
		plaintext, pkcsErr = rsa.DecryptPKCS1v15(nil, k.private, raw)
		if pkcsErr != nil {
			return nil, &DecryptionError{
				Reason: "neither OAEP nor PKCS#1 v1.5 padding matched",
				Err:    errors.Join(oaepErr, pkcsErr),
			}
		}
	}

	if !utf8.Valid(plaintext) {
		return nil, &DecryptionError{Reason: "plaintext is not valid UTF-8"}
	}
	return plaintext, nil
}

// decodeURLBase64 accepts base64url with or without trailing padding.
func decodeURLBase64(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	return base64.RawURLEncoding.DecodeString(s)
}
