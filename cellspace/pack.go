package cellspace

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/outofforest/photon"
	"github.com/outofforest/sphtree/types"
	"github.com/outofforest/sphtree/xferhash"
)

// PackedCellRecord is the flat, pointer-free, depth-first image of one
// cell. It carries only geometry, counts, temporal stamps and a per-node
// tag — never particle content or the task graph. ChildOffset entries are
// indices into the enclosing flat sequence, or -1 for an absent progeny
// slot.
type PackedCellRecord struct {
	Loc, Width types.Vec3
	Dmin       float64
	Depth      int32
	Split      int32

	ChildOffset [8]int32
	Counts      [types.NumParticleKinds]int32

	TiOldPart      int64
	TiOldGpart     int64
	TiOldMultipole int64
	TiEndMin       [types.NumParticleKinds]int64
	TiEndMax       [types.NumParticleKinds]int64

	Tag   uint32
	Owner int32
}

var packedCellRecordSize = int(unsafe.Sizeof(PackedCellRecord{}))

// Pack produces a cache-free, pointer-free depth-first image of the
// subtree rooted at root, suitable for cross-rank transfer. Particle
// content and the task graph are never transported.
func Pack(tr *Tree, root types.CellIndex) []byte {
	records := make([]PackedCellRecord, 0, SubtreeSize(tr.Cells, root))
	packWalk(tr.Cells, root, &records)

	buf := make([]byte, 0, len(records)*packedCellRecordSize+xferhash.ChecksumLen)
	for i := range records {
		buf = append(buf, photon.NewFromValue(&records[i]).B...)
	}
	return xferhash.Append(buf)
}

func packWalk(cells cellGetter, idx types.CellIndex, records *[]PackedCellRecord) int32 {
	c := cells.Get(idx)
	myIdx := int32(len(*records))
	*records = append(*records, PackedCellRecord{})

	rec := PackedCellRecord{
		Loc: c.Loc, Width: c.Width, Dmin: c.Dmin, Depth: int32(c.Depth),
		TiOldPart: int64(c.TiOldPart), TiOldGpart: int64(c.TiOldGpart), TiOldMultipole: int64(c.TiOldMultipole),
		Tag: uint32(c.Tag), Owner: int32(c.Owner),
	}
	for i := range rec.ChildOffset {
		rec.ChildOffset[i] = -1
	}
	for k := 0; k < types.NumParticleKinds; k++ {
		rec.Counts[k] = int32(c.Windows[k].Count)
		rec.TiEndMin[k] = int64(c.TiEndMin[k])
		rec.TiEndMax[k] = int64(c.TiEndMax[k])
	}

	if c.Split {
		rec.Split = 1
		for oct, p := range c.Progeny {
			if p != types.NoCell {
				rec.ChildOffset[oct] = packWalk(cells, p, records)
			}
		}
	}

	(*records)[myIdx] = rec
	return myIdx
}

// cellGetter is the minimal arena view pack/unpack need.
type cellGetter interface {
	Get(types.CellIndex) *types.Cell
	Allocate(n int) ([]types.CellIndex, error)
}

// Unpack reconstructs a subtree from a buffer produced by Pack, allocating
// fresh cells from cells. It reproduces geometry, counts, temporal stamps
// and topology exactly; it does not link particle windows (call
// LinkParticles afterwards) and carries no task graph.
func Unpack(cells cellGetter, buf []byte) (types.CellIndex, error) {
	body, err := xferhash.Verify(buf)
	if err != nil {
		return types.NoCell, err
	}
	if len(body)%packedCellRecordSize != 0 {
		return types.NoCell, errors.New("buffer length is not a multiple of the record size")
	}
	n := len(body) / packedCellRecordSize
	if n == 0 {
		return types.NoCell, errors.New("empty pack buffer")
	}

	records := make([]PackedCellRecord, n)
	for i := 0; i < n; i++ {
		records[i] = *photon.FromBytes[PackedCellRecord](body[i*packedCellRecordSize : (i+1)*packedCellRecordSize])
	}

	idxs, err := cells.Allocate(n)
	if err != nil {
		return types.NoCell, errors.WithMessage(err, "allocating unpacked cells")
	}
	for i, rec := range records {
		c := cells.Get(idxs[i])
		c.Loc, c.Width, c.Dmin, c.Depth = rec.Loc, rec.Width, rec.Dmin, int(rec.Depth)
		c.TiOldPart = types.IntTime(rec.TiOldPart)
		c.TiOldGpart = types.IntTime(rec.TiOldGpart)
		c.TiOldMultipole = types.IntTime(rec.TiOldMultipole)
		c.Tag = types.NodeTag(rec.Tag)
		c.Owner = types.RankID(rec.Owner)
		for k := 0; k < types.NumParticleKinds; k++ {
			c.Windows[k] = types.Window{Count: types.ParticleIndex(rec.Counts[k])}
			c.TiEndMin[k] = types.IntTime(rec.TiEndMin[k])
			c.TiEndMax[k] = types.IntTime(rec.TiEndMax[k])
		}
		if rec.Split != 0 {
			c.Split = true
			for oct, child := range rec.ChildOffset {
				if child >= 0 {
					c.Progeny[oct] = idxs[child]
					cells.Get(idxs[child]).Parent = idxs[i]
				} else {
					c.Progeny[oct] = types.NoCell
				}
			}
		}
	}

	return idxs[0], nil
}

// StepInfoRecord is the narrow pack_step_info variant: per-step scalars
// only.
type StepInfoRecord struct {
	TiEndMin, TiEndMax [types.NumParticleKinds]int64
	DxMaxPart          float64
	DxMaxGpart         float64
	DxMaxSort          float64
}

// PackStepInfo produces a depth-first flat sequence of per-step scalars
// for the subtree rooted at root.
func PackStepInfo(tr *Tree, root types.CellIndex) []byte {
	var buf bytes.Buffer
	var walk func(idx types.CellIndex)
	walk = func(idx types.CellIndex) {
		c := tr.Cells.Get(idx)
		rec := StepInfoRecord{DxMaxPart: c.DxMaxPart, DxMaxGpart: c.DxMaxGpart, DxMaxSort: c.DxMaxSort}
		for k := 0; k < types.NumParticleKinds; k++ {
			rec.TiEndMin[k] = int64(c.TiEndMin[k])
			rec.TiEndMax[k] = int64(c.TiEndMax[k])
		}
		_ = binary.Write(&buf, binary.LittleEndian, rec)
		if c.Split {
			for _, p := range c.Progeny {
				if p != types.NoCell {
					walk(p)
				}
			}
		}
	}
	walk(root)
	return xferhash.Append(buf.Bytes())
}

// multipoleHeader is MultipoleRecord's fixed-layout wire prefix: the
// MAC-test scalars plus the expansion order for the Coeff values that
// follow it on the wire. It exists separately from MultipoleRecord because
// encoding/binary.Write requires a fixed-size value and Coeff itself is
// variable-length (types.Multipole.EnsureOrder sizes it to the configured
// multipole order).
type multipoleHeader struct {
	Mass     float64
	CoM      types.Vec3
	RMax     float64
	CoeffLen int32
}

// MultipoleRecord is one node's full multipole snapshot for pack_multipoles:
// the MAC-test scalars (mass, centre of mass, r_max) and the expansion
// coefficients themselves, so a receiving rank can run both the MAC test
// and M2L against a foreign cell's multipole without a further round trip.
type MultipoleRecord struct {
	Mass  float64
	CoM   types.Vec3
	RMax  float64
	Coeff []float64
}

// PackMultipoles produces a depth-first snapshot of each node's full
// multipole value for the subtree rooted at root.
func PackMultipoles(tr *Tree, root types.CellIndex) []byte {
	var buf bytes.Buffer
	var walk func(idx types.CellIndex)
	walk = func(idx types.CellIndex) {
		c := tr.Cells.Get(idx)
		hdr := multipoleHeader{
			Mass: c.Multipole.Mass, CoM: c.Multipole.CoM, RMax: c.Multipole.RMax,
			CoeffLen: int32(len(c.Multipole.Coeff)),
		}
		_ = binary.Write(&buf, binary.LittleEndian, hdr)
		if len(c.Multipole.Coeff) > 0 {
			_ = binary.Write(&buf, binary.LittleEndian, c.Multipole.Coeff)
		}
		if c.Split {
			for _, p := range c.Progeny {
				if p != types.NoCell {
					walk(p)
				}
			}
		}
	}
	walk(root)
	return xferhash.Append(buf.Bytes())
}

// UnpackMultipoles reads a depth-first sequence of MultipoleRecord values
// (as produced by PackMultipoles) back into a slice, in wire order. It does
// not attach records to cells: the topology pass (Unpack) and this pass
// travel separately, per the data model's "multipoles refresh independently
// of topology" rule, so the caller zips this slice against a prior Unpack's
// depth-first cell order itself.
func UnpackMultipoles(buf []byte) ([]MultipoleRecord, error) {
	body, err := xferhash.Verify(buf)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(body)
	var records []MultipoleRecord
	for r.Len() > 0 {
		var hdr multipoleHeader
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, errors.WithMessage(err, "reading multipole header")
		}
		rec := MultipoleRecord{Mass: hdr.Mass, CoM: hdr.CoM, RMax: hdr.RMax}
		if hdr.CoeffLen > 0 {
			rec.Coeff = make([]float64, hdr.CoeffLen)
			if err := binary.Read(r, binary.LittleEndian, rec.Coeff); err != nil {
				return nil, errors.WithMessage(err, "reading multipole coefficients")
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
