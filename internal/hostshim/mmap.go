package hostshim

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MapFile maps length bytes of fd at offset, honoring spec.md §4.6's
// "delegate to host mmap against the backing blob's host fd" rule.
func MapFile(fd uintptr, offset int64, length int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	b, err := unix.Mmap(int(fd), offset, length, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "hostshim: mmap file")
	}
	return b, nil
}

// MapAnonymous backs an anonymous mapping (SHM segments, anonymous
// mmap()).
func MapAnonymous(length int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	b, err := unix.Mmap(-1, 0, length, prot, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "hostshim: mmap anonymous")
	}
	return b, nil
}

// Unmap releases a mapping obtained from MapFile/MapAnonymous.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return errors.Wrap(unix.Munmap(b), "hostshim: munmap")
}

// RetainReservation re-maps b's address range with PROT_NONE anonymous
// memory instead of releasing it — the NaCl-style "over-map rather
// than give back the address range" trick spec.md §4.6 calls for on
// munmap, so a later mmap elsewhere can't be handed the same bytes.
func RetainReservation(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	_, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(len(b)),
		unix.PROT_NONE,
		unix.MAP_FIXED|unix.MAP_PRIVATE|unix.MAP_ANON,
		^uintptr(0), // fd -1
		0,
	)
	if errno != 0 {
		return errors.Wrap(errno, "hostshim: retain reservation")
	}
	return nil
}
