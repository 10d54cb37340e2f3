package fake

import (
	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/types"
)

// Space adapts an arena.Arena to the collab.Space interface.
type Space struct {
	Arena *arena.Arena
}

// GetCells allocates n fresh cells from the arena.
func (s Space) GetCells(n int) ([]types.CellIndex, error) {
	return s.Arena.Allocate(n)
}
