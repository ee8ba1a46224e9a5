package credential

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "accounts.json"))
}

func readTop(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatalf("store is not JSON: %v\n%s", err, data)
	}
	return top
}

func TestStore_SaveAndList(t *testing.T) {
	store := newTestStore(t)

	err := store.Save([]Result{
		{Name: "work", UserID: "u1", Credential: json.RawMessage(`{"token":"a"}`)},
		{Name: "home", UserID: "u2", Credential: json.RawMessage(`{"token":"b"}`)},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
	if entries[0].Name != "home" || entries[1].Name != "work" {
		t.Errorf("List order = %s, %s; want home, work", entries[0].Name, entries[1].Name)
	}
	if entries[1].UserID != "u1" {
		t.Errorf("work UserID = %q, want u1", entries[1].UserID)
	}
	if string(entries[1].Credential) != `{"token":"a"}` {
		t.Errorf("work Credential = %s", entries[1].Credential)
	}
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	store := newTestStore(t)

	f, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Accounts) != 0 {
		t.Errorf("Accounts = %v, want empty", f.Accounts)
	}
}

func TestStore_MergePreservesExisting(t *testing.T) {
	store := newTestStore(t)
	existing := `{
  "accounts": {
    "old": {"user_id": "9", "credential": {"k": 1}, "note": "kept"}
  },
  "settings": {"theme": "dark"}
}`
	if err := os.WriteFile(store.Path(), []byte(existing), 0600); err != nil {
		t.Fatal(err)
	}

	if err := store.Save([]Result{{Name: "new", UserID: "1", Credential: json.RawMessage(`{"k":2}`)}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	top := readTop(t, store.Path())
	if !jsonEqual(top["settings"], `{"theme":"dark"}`) {
		t.Errorf("settings = %s, want preserved", top["settings"])
	}

	var accounts map[string]json.RawMessage
	if err := json.Unmarshal(top["accounts"], &accounts); err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if !jsonEqual(accounts["old"], `{"user_id":"9","credential":{"k":1},"note":"kept"}`) {
		t.Errorf("old = %s, want unchanged", accounts["old"])
	}
	if !jsonEqual(accounts["new"], `{"user_id":"1","credential":{"k":2}}`) {
		t.Errorf("new = %s", accounts["new"])
	}
}

func TestStore_ReplaceSameName(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save([]Result{{Name: "a", UserID: "1", Credential: json.RawMessage(`{"v":1}`)}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save([]Result{{Name: "a", UserID: "1", Credential: json.RawMessage(`{"v":2}`)}}); err != nil {
		t.Fatal(err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !jsonEqual(entries[0].Credential, `{"v":2}`) {
		t.Errorf("Credential = %s, want latest", entries[0].Credential)
	}
}

func TestStore_Idempotent(t *testing.T) {
	store := newTestStore(t)
	results := []Result{
		{Name: "b", UserID: "2", Credential: json.RawMessage(`{"x":"<&>"}`)},
		{Name: "a", UserID: "1", Credential: json.RawMessage(`{"x":1}`)},
	}

	if err := store.Save(results); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(results); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Errorf("second save changed the file:\n%s\n---\n%s", first, second)
	}
	if !strings.Contains(string(first), `<&>`) {
		t.Errorf("store escapes HTML characters:\n%s", first)
	}
}

func TestStore_CorruptFileNotOverwritten(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	err := store.Save([]Result{{Name: "a", UserID: "1", Credential: json.RawMessage(`{}`)}})
	if err == nil {
		t.Fatal("expected error for corrupt store")
	}

	data, _ := os.ReadFile(store.Path())
	if string(data) != "{not json" {
		t.Errorf("corrupt store was modified: %q", data)
	}
}

func TestStore_RejectsInvalidResult(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save([]Result{{Name: "", UserID: "1", Credential: json.RawMessage(`{}`)}}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := store.Save([]Result{{Name: "a", UserID: "1", Credential: json.RawMessage(`nope`)}}); err == nil {
		t.Error("expected error for non-JSON credential")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("rejected save must not create the store")
	}
}

func TestStore_Permissions(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested", "accounts.json"))

	if err := store.Save([]Result{{Name: "a", UserID: "1", Credential: json.RawMessage(`{}`)}}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("store mode = %o, want 600", perm)
	}

	// No temp files left behind.
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(store.Path()), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestStore_Remove(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save([]Result{
		{Name: "a", UserID: "1", Credential: json.RawMessage(`{}`)},
		{Name: "b", UserID: "2", Credential: json.RawMessage(`{}`)},
	}); err != nil {
		t.Fatal(err)
	}

	found, err := store.Remove("a")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !found {
		t.Error("Remove(a) reported not found")
	}

	found, err = store.Remove("missing")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if found {
		t.Error("Remove(missing) reported found")
	}

	entries, _ := store.List()
	if len(entries) != 1 || entries[0].Name != "b" {
		t.Errorf("entries after remove = %+v", entries)
	}
}

func TestStore_ConcurrentSaves(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := NewStore(store.Path()).Save([]Result{{Name: name, UserID: name, Credential: json.RawMessage(`{}`)}}); err != nil {
				t.Errorf("Save(%s): %v", name, err)
			}
		}(name)
	}
	wg.Wait()

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("got %d entries, want 4 (a lock-free merge would lose writes)", len(entries))
	}
}

func jsonEqual(raw json.RawMessage, want string) bool {
	var a, b any
	if json.Unmarshal(raw, &a) != nil || json.Unmarshal([]byte(want), &b) != nil {
		return false
	}
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}
