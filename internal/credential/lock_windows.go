//go:build windows

package credential

import (
	"math"
	"os"

	"golang.org/x/sys/windows"
)

// lockFile takes an exclusive LockFileEx lock on f and returns its release function.
func lockFile(f *os.File) (unlock func(), err error) {
	h := windows.Handle(f.Fd())
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, math.MaxUint32, math.MaxUint32, ol); err != nil {
		return nil, err
	}
	return func() {
		_ = windows.UnlockFileEx(h, 0, math.MaxUint32, math.MaxUint32, ol)
	}, nil
}
