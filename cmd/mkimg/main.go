// Command mkimg formats a fresh nanokernel disk image: a flat file
// holding an MBR, one primary partition, and a freshly laid-out
// nanokernel file system (spec.md §3, §6), the userspace stand-in for
// running the boot-time formatter against real hardware.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nanokernel/nanokernel/ata"
	"github.com/nanokernel/nanokernel/config"
	"github.com/nanokernel/nanokernel/fs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mkimg:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		imagePath  string
		sectors    uint64
		inodeCount uint32
		verbose    bool
		snapshot   string
	)

	cmd := &cobra.Command{
		Use:   "mkimg",
		Short: "Format a fresh nanokernel disk image",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(
				config.WithImagePath(imagePath),
				config.WithInodeCount(inodeCount),
				config.WithVerbose(verbose),
			)
			if err := formatImage(cfg, sectors); err != nil {
				return err
			}
			if snapshot != "" {
				return writeSnapshot(cfg.ImagePath, snapshot)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", config.Default().ImagePath, "path to the disk image to create")
	cmd.Flags().Uint64VarP(&sectors, "sectors", "s", 65536, "total sector count of the image (512 bytes/sector)")
	cmd.Flags().Uint32VarP(&inodeCount, "inodes", "n", config.Default().InodeCount, "inode table size")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log formatting progress")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "also write a compressed snapshot (.xz suffix selects xz, any other name zstd)")

	return cmd
}

// formatImage creates (or truncates) the backing file, writes an MBR
// with a single primary partition spanning the whole image, and runs
// fs.Format against it.
func formatImage(cfg config.Config, sectorCount uint64) error {
	f, err := os.Create(cfg.ImagePath)
	if err != nil {
		return fmt.Errorf("mkimg: creating %s: %w", cfg.ImagePath, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(sectorCount) * ata.SectorSize); err != nil {
		return fmt.Errorf("mkimg: sizing %s: %w", cfg.ImagePath, err)
	}

	ch := ata.NewChannel(ata.PrimaryPortBase, ata.PrimaryIRQ)
	disk, err := ata.NewDisk("sda", ch, false, f)
	if err != nil {
		return fmt.Errorf("mkimg: attaching disk: %w", err)
	}

	if verbose(cfg) {
		log.Printf("mkimg: writing MBR (%d sectors)", sectorCount)
	}
	if err := ata.WriteMBR(disk, 1, sectorCount-1); err != nil {
		return fmt.Errorf("mkimg: writing MBR: %w", err)
	}

	part := &ata.Partition{Name: cfg.PartitionLabel, Disk: disk, StartLBA: 1, SectorCount: sectorCount - 1}

	if verbose(cfg) {
		log.Printf("mkimg: formatting %s with %d inodes", part.Name, cfg.InodeCount)
	}
	if err := fs.Format(part, fs.FormatOptions{InodeCount: cfg.InodeCount}); err != nil {
		return fmt.Errorf("mkimg: formatting %s: %w", part.Name, err)
	}

	if verbose(cfg) {
		p, err := fs.Open(part)
		if err == nil {
			info := p.Stat()
			log.Printf("mkimg: %s ready: %d/%d blocks free, %d/%d inodes free",
				cfg.ImagePath, info.FreeBlocks, info.TotalBlocks, info.FreeInodes, info.TotalInodes)
		}
	}
	return nil
}

func verbose(cfg config.Config) bool { return cfg.Verbose }
