// Package config holds the handful of boot/runtime parameters cmd/mkimg
// and cmd/nsh read off the command line: where the disk image lives,
// which partition to mount, how many inodes to format with, and whether
// to log verbosely. It follows the same functional-options shape as
// ata.Option and the teacher's own options.go, rather than reaching for
// a generic config/flags framework.
package config

// Config is the resolved set of runtime parameters.
type Config struct {
	ImagePath      string
	PartitionLabel string
	InodeCount     uint32
	Verbose        bool
}

// Option configures a Config at construction time.
type Option func(*Config)

// WithImagePath overrides the disk image path.
func WithImagePath(path string) Option {
	return func(c *Config) { c.ImagePath = path }
}

// WithPartitionLabel overrides which partition ScanDisk's result to
// mount ("sdb1" by default).
func WithPartitionLabel(label string) Option {
	return func(c *Config) { c.PartitionLabel = label }
}

// WithInodeCount overrides the inode table size used when formatting.
func WithInodeCount(n uint32) Option {
	return func(c *Config) { c.InodeCount = n }
}

// WithVerbose toggles verbose logging.
func WithVerbose(v bool) Option {
	return func(c *Config) { c.Verbose = v }
}

// Default returns nanokernel's baseline configuration: a local
// "nanokernel.img" file, partition "sdb1", and the production inode
// count (spec.md §3's fixed 4096).
func Default() Config {
	return Config{
		ImagePath:      "nanokernel.img",
		PartitionLabel: "sdb1",
		InodeCount:     4096,
	}
}

// Load returns Default() with every opt applied, the same "start from a
// baseline, let the caller override" pattern cmd/mkimg and cmd/nsh both
// use to turn parsed cobra flags into a Config.
func Load(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
