package fs

import (
	"strings"

	"github.com/nanokernel/nanokernel/ksync"
)

// CWD is a task's current-directory pointer: just the inode number, since
// every facade call already runs against a specific *Partition (spec.md
// §4.10's cwd_inode_no).
type CWD struct {
	Ino uint32
}

// RootCWD returns a CWD positioned at the partition root.
func RootCWD() *CWD { return &CWD{Ino: RootInode} }

// SysOpen implements sys_open: reject a trailing slash, resolve path, and
// dispatch to fileCreate or fileOpen (spec.md §4.7).
func (p *Partition) SysOpen(cwd *CWD, path string, flags OpenFlag) (*OpenFile, error) {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return nil, ErrInvalid
	}

	rec, err := p.resolve(cwd.Ino, path)
	if err != nil {
		return nil, err
	}
	if rec.Parent != nil {
		defer p.Close(rec.Parent)
	}

	if rec.Found {
		if rec.Type == TypeDirectory {
			return nil, ErrIsDir
		}
		if flags&OCREAT != 0 {
			return nil, ErrExists
		}
		return p.fileOpen(rec.Ino, flags)
	}

	if flags&OCREAT == 0 {
		return nil, ErrNotFound
	}
	return p.fileCreate(rec.Parent, rec.Name, flags)
}

// SysClose implements sys_close for a regular-file OpenFile (pipes and
// the console fds are handled by proc.FDTable before reaching here).
func (p *Partition) SysClose(f *OpenFile) { p.fileClose(f) }

// SysRead implements sys_read for a regular file.
func (p *Partition) SysRead(f *OpenFile, buf []byte) (int, error) { return p.fileRead(f, buf) }

// SysWrite implements sys_write for a regular file.
func (p *Partition) SysWrite(f *OpenFile, buf []byte) (int, error) { return p.fileWrite(f, buf) }

// SysLseek implements sys_lseek.
func (p *Partition) SysLseek(f *OpenFile, offset int64, whence Whence) (int64, error) {
	return f.Seek(offset, whence)
}

// SysUnlink implements sys_unlink: the target must be a regular file with
// no live in-memory handle, then delete_entry/inode_release run with the
// parent left closed (spec.md §4.7).
func (p *Partition) SysUnlink(cwd *CWD, path string) error {
	rec, err := p.resolve(cwd.Ino, path)
	if err != nil {
		return err
	}
	if rec.Parent != nil {
		defer p.Close(rec.Parent)
	}
	if !rec.Found {
		return ErrNotFound
	}
	if rec.Type != TypeRegular {
		return ErrIsDir
	}
	if p.IsOpen(rec.Ino) {
		return ErrBusy
	}

	if err := p.deleteEntry(rec.Parent, rec.Ino); err != nil {
		return err
	}
	in, err := p.Open(rec.Ino)
	if err != nil {
		return err
	}
	return p.Release(in)
}

// SysMkdir implements sys_mkdir: allocate an inode and one data block,
// seed it with "." and "..", link it into the parent, and roll back on
// any failed step (spec.md §4.7).
func (p *Partition) SysMkdir(cwd *CWD, path string) error {
	rec, err := p.resolve(cwd.Ino, path)
	if err != nil {
		return err
	}
	if rec.Parent != nil {
		defer p.Close(rec.Parent)
	}
	if rec.Found {
		return ErrExists
	}

	inoNum := p.allocInode()
	if inoNum == -1 {
		return ErrNoSpace
	}

	blockLBA, bitIdx := p.allocBlock()
	if blockLBA == -1 {
		_ = p.freeInode(inoNum)
		return ErrNoSpace
	}

	sector := make([]byte, SectorSize)
	dot, _ := NewDirent(".", uint32(inoNum), TypeDirectory)
	dotdot, _ := NewDirent("..", rec.ParentIno, TypeDirectory)
	dot.marshal(sector[0:DirentSize])
	dotdot.marshal(sector[DirentSize : 2*DirentSize])
	if err := p.disk().Write(p.startLBA()+uint64(blockLBA), sector, 1); err != nil {
		_ = p.freeBlock(bitIdx)
		_ = p.freeInode(inoNum)
		return err
	}
	if err := p.syncBlockBitmapSector(bitIdx); err != nil {
		_ = p.freeBlock(bitIdx)
		_ = p.freeInode(inoNum)
		return err
	}

	entry, err := NewDirent(rec.Name, uint32(inoNum), TypeDirectory)
	if err != nil {
		_ = p.freeBlock(bitIdx)
		_ = p.freeInode(inoNum)
		return err
	}
	if err := p.syncEntry(rec.Parent, entry); err != nil {
		_ = p.freeBlock(bitIdx)
		_ = p.freeInode(inoNum)
		return err
	}
	if err := p.Sync(rec.Parent); err != nil {
		return err
	}

	in := &Inode{part: p, writeSema: ksync.NewSema(1)}
	in.INo = uint32(inoNum)
	in.ISectors[0] = uint32(blockLBA)
	in.ISize = 2 * DirentSize
	if err := p.Sync(in); err != nil {
		return err
	}
	return p.syncInodeBitmapSector(inoNum)
}

// SysRmdir implements sys_rmdir: root, regular files, and non-empty
// directories are all refused (spec.md §4.7).
func (p *Partition) SysRmdir(cwd *CWD, path string) error {
	rec, err := p.resolve(cwd.Ino, path)
	if err != nil {
		return err
	}
	if rec.Parent != nil {
		defer p.Close(rec.Parent)
	}
	if !rec.Found {
		return ErrNotFound
	}
	if rec.Ino == RootInode {
		return ErrInvalid
	}
	if rec.Type != TypeDirectory {
		return ErrNotDir
	}

	child, err := p.Open(rec.Ino)
	if err != nil {
		return err
	}
	return p.dirRemove(rec.Parent, rec.Ino, child)
}

// DirHandle is a handle returned by SysOpendir, pairing the open inode
// with its read cursor.
type DirHandle struct {
	Ino    uint32
	inode  *Inode
	cursor *DirCursor
}

// SysOpendir implements sys_opendir.
func (p *Partition) SysOpendir(cwd *CWD, path string) (*DirHandle, error) {
	rec, err := p.resolve(cwd.Ino, path)
	if err != nil {
		return nil, err
	}
	if rec.Parent != nil {
		defer p.Close(rec.Parent)
	}
	if !rec.Found {
		return nil, ErrNotFound
	}
	if rec.Type != TypeDirectory {
		return nil, ErrNotDir
	}

	in, err := p.Open(rec.Ino)
	if err != nil {
		return nil, err
	}
	return &DirHandle{Ino: rec.Ino, inode: in, cursor: p.NewDirCursor(in)}, nil
}

// SysClosedir implements sys_closedir.
func (p *Partition) SysClosedir(d *DirHandle) { p.Close(d.inode) }

// SysReaddir implements sys_readdir, returning false once exhausted.
func (p *Partition) SysReaddir(d *DirHandle) (Dirent, bool, error) { return d.cursor.Next() }

// SysRewinddir implements sys_rewinddir.
func (d *DirHandle) SysRewinddir() { d.cursor.Rewind() }

// StatResult is sys_stat's output record.
type StatResult struct {
	InodeNo uint32
	Size    uint32
	Type    FileType
}

// SysStat implements sys_stat, special-casing the root path (spec.md
// §4.7).
func (p *Partition) SysStat(cwd *CWD, path string) (StatResult, error) {
	if path == "" || path == "/" {
		in, err := p.Open(RootInode)
		if err != nil {
			return StatResult{}, err
		}
		defer p.Close(in)
		return StatResult{InodeNo: RootInode, Size: in.Size(), Type: TypeDirectory}, nil
	}

	rec, err := p.resolve(cwd.Ino, path)
	if err != nil {
		return StatResult{}, err
	}
	if rec.Parent != nil {
		defer p.Close(rec.Parent)
	}
	if !rec.Found {
		return StatResult{}, ErrNotFound
	}

	in, err := p.Open(rec.Ino)
	if err != nil {
		return StatResult{}, err
	}
	defer p.Close(in)
	return StatResult{InodeNo: rec.Ino, Size: in.Size(), Type: rec.Type}, nil
}

// SysChdir implements sys_chdir: target must exist and must not be a
// regular file (spec.md §4.7).
func (p *Partition) SysChdir(cwd *CWD, path string) error {
	rec, err := p.resolve(cwd.Ino, path)
	if err != nil {
		return err
	}
	if rec.Parent != nil {
		defer p.Close(rec.Parent)
	}
	if !rec.Found {
		return ErrNotFound
	}
	if rec.Type == TypeRegular {
		return ErrNotDir
	}
	cwd.Ino = rec.Ino
	return nil
}

// SysGetcwd implements sys_getcwd: walk upward via each directory's ".."
// entry, reverse-looking-up each child's name in its parent, and
// assemble the path in root-to-leaf order (spec.md §4.7).
func (p *Partition) SysGetcwd(cwd *CWD) (string, error) {
	if cwd.Ino == RootInode {
		return "/", nil
	}

	var names []string
	childIno := cwd.Ino

	for childIno != RootInode {
		child, err := p.Open(childIno)
		if err != nil {
			return "", err
		}
		child.mu.Lock()
		firstLBA := child.ISectors[0]
		child.mu.Unlock()

		sector := make([]byte, SectorSize)
		if err := p.disk().Read(p.startLBA()+uint64(firstLBA), sector, 1); err != nil {
			p.Close(child)
			return "", err
		}
		var dotdot Dirent
		dotdot.unmarshal(sector[DirentSize : 2*DirentSize])
		parentIno := dotdot.INo
		p.Close(child)

		parent, err := p.Open(parentIno)
		if err != nil {
			return "", err
		}
		name, found, err := p.findNameByInode(parent, childIno)
		p.Close(parent)
		if err != nil {
			return "", err
		}
		if !found {
			return "", ErrNotFound
		}

		names = append(names, name)
		childIno = parentIno
	}

	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(names[i])
	}
	return b.String(), nil
}

// findNameByInode scans dir for the live entry whose inode number is
// ino, the reverse lookup sys_getcwd needs since a child only knows its
// parent's inode, never its own name within it.
func (p *Partition) findNameByInode(dir *Inode, ino uint32) (string, bool, error) {
	lbas, err := p.blockLBAs(dir)
	if err != nil {
		return "", false, err
	}
	for _, lba := range lbas {
		sector := make([]byte, SectorSize)
		if err := p.disk().Read(p.startLBA()+uint64(lba), sector, 1); err != nil {
			return "", false, err
		}
		for s := 0; s < EntriesPerSector; s++ {
			off := s * DirentSize
			var d Dirent
			d.unmarshal(sector[off : off+DirentSize])
			if !d.Free() && d.INo == ino && d.NameString() != "." && d.NameString() != ".." {
				return d.NameString(), true, nil
			}
		}
	}
	return "", false, nil
}
