//go:build linux

package ata

import (
	"os"

	"golang.org/x/sys/unix"
)

// blockDeviceSize asks the kernel for a raw block device's size via the
// BLKGETSIZE64 ioctl, letting nanokernel mkimg target a real /dev/sdX the
// same way a production ATA driver would see the device's true geometry
// instead of trusting a possibly-stale partition table entry.
func blockDeviceSize(f *os.File) (uint64, error) {
	return unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64)
}
