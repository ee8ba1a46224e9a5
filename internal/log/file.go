package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// FileWriter appends JSON log lines to dir/YYYY-MM-DD.jsonl, switching files
// at midnight and pointing dir/latest at the current one.
type FileWriter struct {
	dir      string
	mu       sync.Mutex
	file     *os.File
	currDate string
}

// NewFileWriter creates dir (0700) and opens today's log file.
func NewFileWriter(dir string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}

	fw := &FileWriter{dir: dir}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.openLocked(time.Now().Format(dateLayout)); err != nil {
		return nil, err
	}
	return fw, nil
}

// Write implements io.Writer.
func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if today := time.Now().Format(dateLayout); today != fw.currDate {
		if err := fw.openLocked(today); err != nil {
			return 0, err
		}
	}
	if fw.file == nil {
		return 0, os.ErrClosed
	}
	return fw.file.Write(p)
}

// Close closes the current file.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}

func (fw *FileWriter) openLocked(date string) error {
	if fw.file != nil {
		fw.file.Close()
		fw.file = nil
	}

	name := date + ".jsonl"
	f, err := os.OpenFile(filepath.Join(fw.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	fw.file = f
	fw.currDate = date

	// Best effort: a missing symlink only affects convenience.
	link := filepath.Join(fw.dir, "latest")
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(name, tmp); err == nil {
		_ = os.Rename(tmp, link)
	}
	return nil
}

var logFilePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.jsonl$`)

// Cleanup removes daily log files older than retentionDays and returns how
// many were deleted.
func Cleanup(dir string, retentionDays int) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !logFilePattern.MatchString(name) {
			continue
		}
		day, err := time.Parse(dateLayout, name[:len(dateLayout)])
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(dir, name)) == nil {
			removed++
		}
	}
	return removed
}
