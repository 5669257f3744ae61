package fs

import "strings"

// PathSearchRecord is the result of resolving a path: the inode found (if
// any), its parent directory, and the final path component — enough for
// callers to both use the result and, on O_CREAT, link a fresh inode into
// the right parent (spec.md §4.6, §4.7).
type PathSearchRecord struct {
	Parent    *Inode
	ParentIno uint32
	Ino       uint32
	Type      FileType
	Found     bool
	Name      string
}

// splitPath breaks an absolute or relative path into its components,
// dropping empty segments produced by repeated or trailing slashes.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// depth reports how many components path has (spec.md §1's non-goal
// bounds path depth, not nanokernel's own limit, but every caller that
// needs to reject an absurdly deep path measures it this way).
func depth(path string) int { return len(splitPath(path)) }

// resolve walks path from cwd (root if cwd is 0), opening and closing
// intermediate directories as it goes, and returns a PathSearchRecord
// describing the final component. The caller owns ParentIno/Ino once
// resolved and is responsible for eventually Close()ing them — resolve
// itself leaves the parent open only when Parent is non-nil.
func (p *Partition) resolve(cwd uint32, path string) (PathSearchRecord, error) {
	comps := splitPath(path)

	cur := cwd
	if path == "" || strings.HasPrefix(path, "/") || cwd == 0 {
		cur = RootInode
	}

	if len(comps) == 0 {
		return PathSearchRecord{ParentIno: cur, Ino: cur, Type: TypeDirectory, Found: true, Name: "."}, nil
	}

	for i, comp := range comps {
		dirInode, err := p.Open(cur)
		if err != nil {
			return PathSearchRecord{}, err
		}

		entry, found, err := p.search(dirInode, comp)
		last := i == len(comps)-1

		if !last {
			p.Close(dirInode)
			if err != nil {
				return PathSearchRecord{}, err
			}
			if !found {
				return PathSearchRecord{}, ErrNotFound
			}
			if entry.Type != TypeDirectory {
				return PathSearchRecord{}, ErrNotDir
			}
			cur = entry.INo
			continue
		}

		if err != nil {
			p.Close(dirInode)
			return PathSearchRecord{}, err
		}
		if !found {
			return PathSearchRecord{Parent: dirInode, ParentIno: cur, Found: false, Name: comp}, nil
		}
		return PathSearchRecord{
			Parent:    dirInode,
			ParentIno: cur,
			Ino:       entry.INo,
			Type:      entry.Type,
			Found:     true,
			Name:      comp,
		}, nil
	}

	// unreachable: comps is non-empty, the loop above always returns.
	return PathSearchRecord{}, ErrNotFound
}
