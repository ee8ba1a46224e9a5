// Package credential persists Zed credentials obtained by sign-in exchanges.
//
// The store is a single JSON file in zed2api format:
//
//	{
//	  "accounts": {
//	    "work": {"user_id": "123", "credential": {...}}
//	  }
//	}
//
// Every save is a locked read-merge-write: entries from earlier runs are kept,
// entries with the same display name are replaced, and unknown top-level keys
// are preserved. Save never drops an entry; only Remove does.
package credential

import "encoding/json"

// Result is the outcome of one successful exchange: the display name it is
// stored under, the provider user ID, and the opaque decrypted credential.
type Result struct {
	Name       string
	UserID     string
	Credential json.RawMessage
}

// Entry is the stored value for one display name.
type Entry struct {
	UserID     string          `json:"user_id"`
	Credential json.RawMessage `json:"credential"`
}

// NamedEntry pairs an Entry with its display name for listing.
type NamedEntry struct {
	Name string
	Entry
}

// File is the decoded store file.
type File struct {
	Accounts map[string]Entry
	// extra holds top-level keys other than "accounts", written back verbatim.
	extra map[string]json.RawMessage
	// raw holds every stored account exactly as read so fields unknown to
	// Entry survive a save.
	raw map[string]json.RawMessage
}
