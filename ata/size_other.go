//go:build !linux

package ata

import (
	"fmt"
	"os"
)

// blockDeviceSize has no portable ioctl outside Linux; nanokernel is only
// ever pointed at raw block devices there, so other platforms are
// restricted to plain image files (handled by sizeOf before reaching
// here).
func blockDeviceSize(f *os.File) (uint64, error) {
	return 0, fmt.Errorf("ata: block device sizing not supported on this platform: %s", f.Name())
}
