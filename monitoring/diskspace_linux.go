//go:build linux

package monitoring

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const bytesPerGigabyte = 1024 * 1024 * 1024

// AvailableGigabytes returns the space available to unprivileged users on
// the filesystem holding path.
func AvailableGigabytes(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return float64(uint64(st.Frsize)*st.Bavail) / bytesPerGigabyte, nil
}
