package credential

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const accountsKey = "accounts"

// Store is the on-disk credential store. It assumes a single writer per
// file; concurrent zedlogin processes are serialized with an advisory lock.
type Store struct {
	path string
}

// NewStore returns a store backed by path. The file need not exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// Save merges results into the store, keyed by display name with the last
// result for a name winning, and rewrites the file atomically.
func (s *Store) Save(results []Result) error {
	for _, r := range results {
		if r.Name == "" {
			return fmt.Errorf("saving credential for user %s: empty display name", r.UserID)
		}
		if !json.Valid(r.Credential) {
			return fmt.Errorf("saving credential %s: payload is not valid JSON", r.Name)
		}
	}

	return s.withLock(func() error {
		f, err := s.load()
		if err != nil {
			return err
		}
		for _, r := range results {
			entry := Entry{UserID: r.UserID, Credential: r.Credential}
			f.Accounts[r.Name] = entry
			delete(f.raw, r.Name)
		}
		return s.write(f)
	})
}

// Load reads the store. A missing file is an empty store.
func (s *Store) Load() (*File, error) {
	return s.load()
}

// List returns stored entries sorted by name.
func (s *Store) List() ([]NamedEntry, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]NamedEntry, 0, len(f.Accounts))
	for name, e := range f.Accounts {
		out = append(out, NamedEntry{Name: name, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Remove deletes one entry. It reports whether the name was present.
func (s *Store) Remove(name string) (bool, error) {
	var found bool
	err := s.withLock(func() error {
		f, err := s.load()
		if err != nil {
			return err
		}
		if _, found = f.Accounts[name]; !found {
			return nil
		}
		delete(f.Accounts, name)
		delete(f.raw, name)
		return s.write(f)
	})
	return found, err
}

func (s *Store) load() (*File, error) {
	f := &File{
		Accounts: make(map[string]Entry),
		extra:    make(map[string]json.RawMessage),
		raw:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential store: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parsing credential store %s: %w", s.path, err)
	}
	for k, v := range top {
		if k != accountsKey {
			f.extra[k] = v
		}
	}

	if rawAccounts, ok := top[accountsKey]; ok && !isNull(rawAccounts) {
		if err := json.Unmarshal(rawAccounts, &f.raw); err != nil {
			return nil, fmt.Errorf("parsing accounts in %s: %w", s.path, err)
		}
		for name, raw := range f.raw {
			var e Entry
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, fmt.Errorf("parsing account %q in %s: %w", name, s.path, err)
			}
			f.Accounts[name] = e
		}
	}
	return f, nil
}

func (s *Store) write(f *File) error {
	accounts := make(map[string]any, len(f.Accounts))
	for name, e := range f.Accounts {
		if raw, ok := f.raw[name]; ok {
			accounts[name] = raw
			continue
		}
		accounts[name] = e
	}

	top := make(map[string]any, len(f.extra)+1)
	for k, v := range f.extra {
		top[k] = v
	}
	top[accountsKey] = accounts

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(top); err != nil {
		return fmt.Errorf("encoding credential store: %w", err)
	}

	return writeFileAtomic(s.path, buf.Bytes(), 0600)
}

// writeFileAtomic writes data to a temp file beside path and renames it into
// place, so an interrupted run leaves either the old or the new file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating credential store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credential store: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting credential store permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing credential store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing credential store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing credential store: %w", err)
	}
	return nil
}

// withLock runs fn while holding an exclusive lock on path + ".lock".
func (s *Store) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating credential store dir: %w", err)
	}
	lf, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("creating lock file: %w", err)
	}
	defer lf.Close()

	unlock, err := lockFile(lf)
	if err != nil {
		return fmt.Errorf("acquiring credential store lock: %w", err)
	}
	defer unlock()

	return fn()
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
