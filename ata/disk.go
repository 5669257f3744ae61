package ata

import "io"

// BlockStore is the minimal contract a disk's backing store must satisfy.
// An *os.File opened on a raw image (or block device) satisfies it
// directly, the same way dargueta-disko's drivers wrap an
// io.ReadWriteSeeker rather than assuming a particular storage type.
type BlockStore interface {
	io.ReaderAt
	io.WriterAt
}

// Disk is one device on a Channel: master or slave, with a fixed sector
// count and an identify-style serial/model pair (spec.md §3, §4.2).
type Disk struct {
	Name         string
	Channel      *Channel
	Slave        bool
	TotalSectors uint64
	Serial       string
	Model        string

	backing BlockStore
}

// Option configures a Disk at construction time, following the same
// functional-options shape the teacher uses for Superblock (options.go).
type Option func(*Disk)

// WithIdentity sets the serial/model strings Identify reports.
func WithIdentity(serial, model string) Option {
	return func(d *Disk) {
		d.Serial = serial
		d.Model = model
	}
}

// NewDisk attaches backing to channel as master (or slave) and determines
// its sector count from the store's size.
func NewDisk(name string, channel *Channel, slave bool, backing BlockStore, opts ...Option) (*Disk, error) {
	d := &Disk{
		Name:    name,
		Channel: channel,
		Slave:   slave,
		backing: backing,
		Serial:  "NANOKERNEL0001",
		Model:   "nanokernel virtual disk",
	}

	n, err := sizeOf(backing)
	if err != nil {
		return nil, err
	}
	d.TotalSectors = n / SectorSize

	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Read transfers secCnt sectors starting at lba from disk into buf,
// chunked into commands of at most MaxSectorsPerCommand sectors each, per
// spec.md §4.2.
func (d *Disk) Read(lba uint64, buf []byte, secCnt int) error {
	return d.transfer(lba, buf, secCnt, false)
}

// Write transfers secCnt sectors from buf to disk starting at lba,
// chunked the same way as Read.
func (d *Disk) Write(lba uint64, buf []byte, secCnt int) error {
	return d.transfer(lba, buf, secCnt, true)
}

func (d *Disk) transfer(lba uint64, buf []byte, secCnt int, write bool) error {
	if secCnt <= 0 {
		return nil
	}
	if len(buf) < secCnt*SectorSize {
		return io.ErrShortBuffer
	}

	remaining := secCnt
	offset := 0
	cur := lba
	for remaining > 0 {
		chunk := remaining
		if chunk > MaxSectorsPerCommand {
			chunk = MaxSectorsPerCommand
		}
		sub := buf[offset : offset+chunk*SectorSize]
		if err := d.Channel.dispatch(d, write, cur, sub, chunk); err != nil {
			return err
		}
		remaining -= chunk
		offset += chunk * SectorSize
		cur += uint64(chunk)
	}
	return nil
}
