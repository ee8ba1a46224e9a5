package audit

import "fmt"

// Result contains the outcome of verifying the history chain.
type Result struct {
	Valid      bool   `json:"valid"`
	EntryCount uint64 `json:"entry_count"`
	Error      string `json:"error,omitempty"`
}

// Verify walks the whole chain and checks every hash and back-link.
func (s *Store) Verify() (*Result, error) {
	entries, err := s.All()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	result := &Result{Valid: true, EntryCount: uint64(len(entries))}
	prevHash := ""
	expected := FirstSequence
	for _, e := range entries {
		switch {
		case e.Sequence != expected:
			result.Error = fmt.Sprintf("sequence gap: expected %d, found %d", expected, e.Sequence)
		case e.PrevHash != prevHash:
			result.Error = fmt.Sprintf("broken link at seq %d", e.Sequence)
		case !e.Verify():
			result.Error = fmt.Sprintf("hash mismatch at seq %d", e.Sequence)
		}
		if result.Error != "" {
			result.Valid = false
			return result, nil
		}
		prevHash = e.Hash
		expected++
	}
	return result, nil
}
