//go:build windows

package monitoring

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const bytesPerGigabyte = 1024 * 1024 * 1024

func AvailableGigabytes(path string) (float64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, fmt.Errorf("invalid path %s: %w", path, err)
	}

	var freeToCaller, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &totalFree); err != nil {
		return 0, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", path, err)
	}
	return float64(freeToCaller) / bytesPerGigabyte, nil
}
