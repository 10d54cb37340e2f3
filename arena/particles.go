package arena

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/outofforest/photon"
	"github.com/outofforest/sphtree/types"
)

// NewParticleStore mmaps one anonymous, populated region sized for the
// requested particle counts and slices it into the four parallel arrays
// behind types.ParticleStore. Unlike the cell arena, particle records are
// plain POD (positions, velocities, scalars) with no Go pointers inside
// them, so projecting typed slices over raw mmap'd bytes via
// github.com/outofforest/photon is safe — the same technique the teacher
// uses for its node storage (alloc/state.go), just applied to four fixed
// record layouts instead of one generic byte-addressed node.
//
// The returned func releases the mapping; callers must invoke it exactly
// once when the store is no longer needed.
func NewParticleStore(maxGas, maxGrav, maxStar int, useHugePages bool) (*types.ParticleStore, func(), error) {
	var gp types.GasParticle
	var xp types.ExtendedGas
	var vp types.GravParticle
	var sp types.StarParticle

	gasBytes := uint64(maxGas) * uint64(unsafe.Sizeof(gp))
	extBytes := uint64(maxGas) * uint64(unsafe.Sizeof(xp))
	gravBytes := uint64(maxGrav) * uint64(unsafe.Sizeof(vp))
	starBytes := uint64(maxStar) * uint64(unsafe.Sizeof(sp))
	total := gasBytes + extBytes + gravBytes + starBytes
	if total == 0 {
		total = 1
	}

	opts := unix.MAP_SHARED | unix.MAP_ANONYMOUS | unix.MAP_POPULATE
	if useHugePages {
		opts |= unix.MAP_HUGETLB
	}
	data, err := unix.Mmap(-1, 0, int(total), unix.PROT_READ|unix.PROT_WRITE, opts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "particle store allocation failed")
	}

	base := unsafe.Pointer(&data[0])
	store := &types.ParticleStore{
		Gas:    photon.SliceFromPointer[types.GasParticle](base, maxGas)[:0],
		GasExt: photon.SliceFromPointer[types.ExtendedGas](unsafe.Add(base, gasBytes), maxGas)[:0],
		Grav:   photon.SliceFromPointer[types.GravParticle](unsafe.Add(base, gasBytes+extBytes), maxGrav)[:0],
		Star:   photon.SliceFromPointer[types.StarParticle](unsafe.Add(base, gasBytes+extBytes+gravBytes), maxStar)[:0],
	}

	return store, func() { _ = unix.Munmap(data) }, nil
}
