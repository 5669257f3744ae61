package fs

// tryAcquireWrite enforces the single-writer invariant on a regular file
// (spec.md §4.5, §7): the first writer to open the file succeeds, any
// concurrent second writer fails immediately rather than blocking. A
// reader is never affected by write_deny.
func (in *Inode) tryAcquireWrite() bool {
	if !in.writeSema.TryDown() {
		return false
	}
	in.writeDeny = true
	return true
}

// releaseWrite clears write_deny, letting the next writer in.
func (in *Inode) releaseWrite() {
	if !in.writeDeny {
		return
	}
	in.writeDeny = false
	in.writeSema.Up()
}
