package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/nanokernel/nanokernel/fs"
	"github.com/nanokernel/nanokernel/proc"
)

// runLine parses line into one or more pipeline stages and executes it.
// cd is special-cased here (not forked) since it must mutate the
// shell's own CWD; every other command, single or piped, goes through
// runPipeline so a lone command and an N-stage pipeline share one code
// path (spec.md §9's redesign flag 6).
func runLine(sched *proc.Scheduler, reg *proc.Registry, shell *proc.Task, line string) {
	stages, redirect := parseLine(line)
	if len(stages) == 0 {
		return
	}

	if len(stages) == 1 && stages[0][0] == "cd" {
		target := "/"
		if len(stages[0]) > 1 {
			target = stages[0][1]
		}
		if err := shell.Partition.SysChdir(shell.CWD, target); err != nil {
			fmt.Printf("cd: %v\n", err)
		}
		return
	}

	runPipeline(sched, reg, shell, stages, redirect)
}

// parseLine splits line on "|" into whitespace-tokenized stages and
// pulls a trailing "> file" redirect (applying to the whole pipeline's
// final stdout) off the last stage.
func parseLine(line string) (stages [][]string, redirect string) {
	parts := strings.Split(line, "|")
	for _, part := range parts {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		stages = append(stages, fields)
	}
	if len(stages) == 0 {
		return nil, ""
	}

	last := stages[len(stages)-1]
	for i, f := range last {
		if f == ">" && i+1 < len(last) {
			redirect = last[i+1]
			stages[len(stages)-1] = last[:i]
			break
		}
	}
	return stages, redirect
}

// runPipeline wires len(stages)-1 pipes between forked children, one per
// stage, each running its builtin via Registry.Exec with stdin/stdout
// redirected through fd_redirect exactly as spec.md §6 describes, then
// waits for all of them. A single-stage "pipeline" takes the identical
// path with zero pipes created.
func runPipeline(sched *proc.Scheduler, reg *proc.Registry, shell *proc.Task, stages [][]string, redirect string) {
	n := len(stages)
	readEnds := make([]int, n-1)
	writeEnds := make([]int, n-1)
	for i := 0; i < n-1; i++ {
		r, w, err := shell.Pipe()
		if err != nil {
			fmt.Printf("nsh: pipe: %v\n", err)
			return
		}
		readEnds[i] = r
		writeEnds[i] = w
	}

	var outFile int = -1
	if redirect != "" {
		fd, err := shell.Open(redirect, fs.OCREAT|fs.ORDWR)
		if err != nil {
			fmt.Printf("nsh: %s: %v\n", redirect, err)
			return
		}
		outFile = fd
	}

	children := make([]*proc.Task, n)
	for i, argv := range stages {
		child := sched.Fork(shell)
		if err := reg.Exec(child, argv[0], argv); err != nil {
			log.Printf("nsh: exec %s failed: %v", argv[0], err)
			fmt.Printf("nsh: %s: %v\n", argv[0], err)
			sched.Exit(child, 1)
			children[i] = child
			continue
		}

		if i > 0 {
			child.FdRedirect(0, readEnds[i-1])
		}
		if i < n-1 {
			child.FdRedirect(1, writeEnds[i])
		} else if outFile != -1 {
			child.FdRedirect(1, outFile)
		}

		// A real fork inherits the whole fd table, not just the two
		// ends this stage cares about; after the redirect above has
		// aliased what it needs onto 0/1, drop the child's own copies
		// of every pipe's original local fd number so each pipe's
		// open-count still reaches zero once every stage is done with
		// it, instead of being held open by stages that never touch it.
		for _, fd := range readEnds {
			child.Close(fd)
		}
		for _, fd := range writeEnds {
			child.Close(fd)
		}
		if outFile != -1 {
			child.Close(outFile)
		}

		children[i] = child
		child.Run(sched)
	}

	// The shell's own copies of every pipe fd are no longer needed once
	// every stage has its own redirected reference; closing them here
	// keeps each pipe's open-count accurate instead of pinned open by
	// the parent's table forever.
	for _, fd := range readEnds {
		shell.Close(fd)
	}
	for _, fd := range writeEnds {
		shell.Close(fd)
	}
	if outFile != -1 {
		shell.Close(outFile)
	}

	for range children {
		if _, _, err := sched.Wait(shell); err != nil {
			break
		}
	}
}
