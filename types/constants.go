// Package types holds the data model shared by every component of the
// cell-tree core: particle kinds, the cell tree node, multipole expansions,
// task handles and the small set of engine-wide scalar types.
package types

// IntTime is the engine's integer time coordinate. All drift and time-bin
// bookkeeping operates on this type rather than on wall-clock floats so that
// comparisons and differences stay exact.
type IntTime int64

// NoTime is used where no stamp has been recorded yet.
const NoTime IntTime = -1

// TimeBin selects a particle's step length: 2^TimeBin is the number of base
// time units between successive kicks. Smaller bins wake up more often.
type TimeBin int8

// NumSortDirections is the number of canonical axes between neighbouring
// cells. The 27-direction stencil folds to 13 by antisymmetry (opposite
// directions share one bit).
const NumSortDirections = 13

// SortMask is a bitmask over the 13 sort directions. Kept as a plain 16-bit
// integer per the design notes: no need for anything wider.
type SortMask uint16

// CellIndex is a 32-bit arena index used as the non-owning back-reference
// from a child cell to its parent and from any other part of the system to
// a cell, instead of a native pointer. This keeps the parent/progeny
// relationship acyclic in terms of Go's ownership (the arena slice owns the
// storage; everyone else holds an index).
type CellIndex uint32

// NoCell is the sentinel for "no cell" (absent progeny slot, root's parent).
const NoCell CellIndex = 1<<32 - 1

// ParticleIndex indexes into one of the flat particle arrays.
type ParticleIndex uint32

// NoParticle is the sentinel value for an absent back-link.
const NoParticle ParticleIndex = 1<<32 - 1

// NodeTag is a process-wide, monotonically increasing identifier used to
// pair up a send task on one rank with the matching recv task on another.
type NodeTag uint32

// MaxTag bounds the tag counter; it wraps modulo this value.
const MaxTag NodeTag = 1 << 20

// RankID identifies an MPI-style rank owning a subset of the top-level
// cells.
type RankID int32

// NoRank marks a cell with no single owning rank (used for unassigned
// top-level placeholders only; every real cell in a running engine has an
// owner).
const NoRank RankID = -1
