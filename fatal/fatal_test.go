package fatal_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/outofforest/sphtree/fatal"
	"github.com/outofforest/sphtree/types"
)

// Abort itself is not exercised here: it ends in zap's Fatal, which calls
// os.Exit(1) and would kill the test binary. Only the pure field
// constructors are tested.

func TestCellFieldNamesIndexAndDepth(t *testing.T) {
	f := fatal.Cell(types.CellIndex(7), 3)
	require.Equal(t, "cell", f.Key)
	require.Equal(t, zapcore.ObjectMarshalerType, f.Type)
}

func TestTaskFieldIsStableForTheSameIdentity(t *testing.T) {
	f1 := fatal.Task(1, 2, types.TaskPair, types.SubtypeDensity)
	f2 := fatal.Task(1, 2, types.TaskPair, types.SubtypeDensity)
	require.Equal(t, f1, f2)
	require.Equal(t, "task_key", f1.Key)
}
