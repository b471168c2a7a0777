package hostshim

import "crypto/rand"

// FillRandom backs /dev/urandom and /dev/random reads (spec.md §4.6:
// "random/urandom → fill random"). The microvisor draws no distinction
// between the two devices' blocking behavior, matching the original
// source's treatment of both as always-ready.
func FillRandom(buf []byte) {
	_, _ = rand.Read(buf)
}
