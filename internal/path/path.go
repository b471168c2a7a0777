// Package path implements spec.md's C3: normalization against a cage's
// cwd, and walking the normalized path against the inode tree.
// Grounded on the root-splitting idiom visible throughout rclone's
// backend NewFs constructors (e.g. backend/local/local.go), adapted
// from "split a remote:path string" to "split a POSIX path".
package path

import (
	"strings"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/inode"
)

// Normalize roots a possibly-relative path at cwd and resolves "."
// and ".." components purely lexically — no filesystem access. The
// result always starts with "/" and never ends with "/" unless it IS
// "/". Matches spec.md §4.2's component-by-component description.
func Normalize(cwd, p string) string {
	if p == "" {
		p = "."
	}
	var base []string
	if strings.HasPrefix(p, "/") {
		base = nil
	} else {
		base = splitClean(cwd)
	}
	for _, c := range strings.Split(p, "/") {
		switch c {
		case "", ".":
			// no-op components
		case "..":
			if len(base) > 0 {
				base = base[:len(base)-1]
			}
		default:
			base = append(base, c)
		}
	}
	if len(base) == 0 {
		return "/"
	}
	return "/" + strings.Join(base, "/")
}

func splitClean(p string) []string {
	var out []string
	for _, c := range strings.Split(p, "/") {
		if c != "" && c != "." {
			out = append(out, c)
		}
	}
	return out
}

// Split returns a normalized path's parent directory and final
// component. Split("/") returns ("/", "").
func Split(normalized string) (dir, name string) {
	if normalized == "/" {
		return "/", ""
	}
	idx := strings.LastIndexByte(normalized, '/')
	dir = normalized[:idx]
	if dir == "" {
		dir = "/"
	}
	name = normalized[idx+1:]
	return
}

// Walk resolves a normalized absolute path to its inode number,
// descending from root and failing on any non-existent or
// non-directory intermediate component.
func Walk(store *inode.Store, normalized string) (uint64, errno.Errno) {
	ino := uint64(inode.RootIno)
	if normalized == "/" {
		return ino, 0
	}
	for _, comp := range strings.Split(strings.TrimPrefix(normalized, "/"), "/") {
		rec, e := store.Get(ino)
		if e != 0 {
			return 0, errno.ENOENT
		}
		if !rec.IsDir() {
			return 0, errno.ENOTDIR
		}
		child, ok := rec.Children[comp]
		if !ok {
			return 0, errno.ENOENT
		}
		ino = child
	}
	return ino, 0
}

// WalkParent resolves both the final component's inode (0 if absent)
// and its parent directory's inode. The parent must exist and be a
// directory, or this returns ENOTDIR/ENOENT for the parent slot too.
func WalkParent(store *inode.Store, normalized string) (child uint64, parent uint64, e errno.Errno) {
	dir, name := Split(normalized)
	parent, e = Walk(store, dir)
	if e != 0 {
		return 0, 0, e
	}
	if name == "" {
		// normalized was "/": no parent above root.
		return parent, 0, 0
	}
	parentRec, e2 := store.Get(parent)
	if e2 != 0 {
		return 0, 0, errno.ENOENT
	}
	if !parentRec.IsDir() {
		return 0, 0, errno.ENOTDIR
	}
	child, ok := parentRec.Children[name]
	if !ok {
		return 0, parent, 0
	}
	return child, parent, 0
}
