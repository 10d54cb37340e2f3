// Package xferhash collects the two hashing concerns scattered across the
// teacher's checksum.go/hash.go: a strong digest for anything that crosses a
// rank boundary, and a fast in-process digest for keying and fingerprinting
// values that never leave the local rank. Grounded on quantum's own split —
// quantum hand-rolls AVX-512 checksums via mmcloughlin/avo for its on-disk
// node format, but reaches for plain github.com/cespare/xxhash
// (quantum.go/space.go's xxhash.Sum64(photon.NewFromValue[K](&key).B)) for
// in-process space-key hashing. Nothing here needs the teacher's SIMD
// asm — cross-rank payloads are small, depth-first record sequences, not the teacher's page-sized B+tree nodes — so this package
// re-bases the same two-tier split onto two plain ecosystem libraries
// instead (see DESIGN.md's dropped-dependency entry for avo).
package xferhash

import (
	"bytes"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/outofforest/photon"
	"github.com/outofforest/sphtree/types"
)

// ChecksumLen is the byte length of the trailing integrity checksum every
// cross-rank transfer buffer carries.
const ChecksumLen = 16

// Checksum is a truncated blake3-128 digest, strong enough to catch
// transport corruption without the cost of a full 256-bit compare.
type Checksum [ChecksumLen]byte

// Append computes buf's checksum and returns buf with it appended, ready for
// transfer.
func Append(buf []byte) []byte {
	sum := blake3.Sum256(buf)
	return append(buf, sum[:ChecksumLen]...)
}

// Verify splits a buffer produced by Append back into its body and trailing
// checksum, returning an error if the trailer doesn't match a fresh digest
// of the body — a truncated or corrupted transfer.
func Verify(buf []byte) ([]byte, error) {
	if len(buf) < ChecksumLen {
		return nil, errors.New("buffer too short to carry a checksum")
	}
	body, trailer := buf[:len(buf)-ChecksumLen], buf[len(buf)-ChecksumLen:]
	sum := blake3.Sum256(body)
	if !bytes.Equal(sum[:ChecksumLen], trailer) {
		return nil, errors.New("checksum mismatch: buffer truncated or corrupted")
	}
	return body, nil
}

// taskKey is the fixed-size, pointer-free projection TaskKey hashes —
// mirroring quantum's pattern of hashing a small value struct's raw bytes
// rather than a variable-length encoding.
type taskKey struct {
	CI, CJ  types.CellIndex
	Type    types.TaskType
	Subtype types.TaskSubtype
}

// TaskKey returns a fast, non-cryptographic fingerprint of a task's
// identity (its cell pair and kind), stable across a single run. It is not
// a substitute for Checksum: it is meant for in-process bookkeeping and
// diagnostics — fatal.Task wraps it as a field for fatal.Abort so a crash
// log can name which task was in flight without printing the whole Task struct — never for
// detecting transport corruption.
func TaskKey(ci, cj types.CellIndex, typ types.TaskType, subtype types.TaskSubtype) uint64 {
	key := taskKey{CI: ci, CJ: cj, Type: typ, Subtype: subtype}
	return xxhash.Sum64(photon.NewFromValue(&key).B)
}
