// Command nsh is the nanokernel shell described in spec.md §6: cd, pwd,
// ls [-l], mkdir, rmdir, rm, touch, echo [> file], ps, clear, help, date,
// and cmd | cmd | ... pipelines built from pipe()+fork()+fd_redirect(),
// the same code path whether the line is one command or several.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nanokernel/nanokernel/ata"
	"github.com/nanokernel/nanokernel/config"
	"github.com/nanokernel/nanokernel/fs"
	"github.com/nanokernel/nanokernel/proc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nsh:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var imagePath, label string

	cmd := &cobra.Command{
		Use:   "nsh",
		Short: "nanokernel shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(config.WithImagePath(imagePath), config.WithPartitionLabel(label))
			return runShell(cfg)
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", config.Default().ImagePath, "disk image to mount")
	cmd.Flags().StringVarP(&label, "partition", "p", config.Default().PartitionLabel, "partition to mount")
	return cmd
}

func runShell(cfg config.Config) error {
	f, err := os.OpenFile(cfg.ImagePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("nsh: opening %s: %w", cfg.ImagePath, err)
	}
	defer f.Close()

	ch := ata.NewChannel(ata.PrimaryPortBase, ata.PrimaryIRQ)
	disk, err := ata.NewDisk("sdb", ch, false, f)
	if err != nil {
		return fmt.Errorf("nsh: attaching disk: %w", err)
	}

	var table ata.PartitionTable
	if err := ata.ScanDisk(&table, disk, 'b'); err != nil {
		return fmt.Errorf("nsh: scanning partitions: %w", err)
	}

	var part *ata.Partition
	for _, p := range table.Partitions {
		if p.Name == cfg.PartitionLabel {
			part = p
			break
		}
	}
	if part == nil {
		return fmt.Errorf("nsh: no partition named %q on %s", cfg.PartitionLabel, cfg.ImagePath)
	}

	pfs, err := fs.Open(part)
	if err != nil {
		return fmt.Errorf("nsh: mounting %s: %w", part.Name, err)
	}
	log.Printf("nsh: mounted %s from %s", part.Name, cfg.ImagePath)

	sched := proc.NewScheduler()
	reg := newBuiltinRegistry(sched)

	shell := sched.Spawn(pfs, "nsh", func(t *proc.Task, argv []string) int { return 0 }, nil)
	log.Printf("nsh: spawned shell task pid=%d", shell.Pid)
	shell.Stdin = os.Stdin
	shell.Stdout = os.Stdout

	fmt.Println("nanokernel shell — type 'help' for a command list")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		cwd, _ := pfs.SysGetcwd(shell.CWD)
		fmt.Printf("nsh:%s$ ", cwd)
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		runLine(sched, reg, shell, line)
	}
	return scanner.Err()
}
