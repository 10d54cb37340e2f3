package types

// TaskHandle is the arena index of a Task, used everywhere a pointer would
// be used in a single-process design (task handles live for one step only;
// the arena that owns them is reset between steps).
type TaskHandle uint32

// NoTask is the sentinel "absent handle" value, also the zero value so an
// unset field naturally means "no task".
const NoTask TaskHandle = 0

// TaskType enumerates the task kinds the scheduler collaborator understands.
type TaskType uint8

// TaskType values.
const (
	TaskSelf TaskType = iota
	TaskPair
	TaskSubSelf
	TaskSubPair
	TaskDrift
	TaskSort
	TaskKick1
	TaskKick2
	TaskGhost
	TaskTimestep
	TaskEndForce
	TaskInitGrav
	TaskGravGhost
	TaskGravDown
	TaskGravLongRange
	TaskSend
	TaskRecv
	TaskCooling
	TaskSourceTerms
)

// TaskSubtype distinguishes the hydro/gravity flavour of a task, and for
// send/recv tasks the payload class.
type TaskSubtype uint8

// TaskSubtype values.
const (
	SubtypeNone TaskSubtype = iota
	SubtypeDensity
	SubtypeGradient
	SubtypeForce
	SubtypeGravity
	SubtypeXV
	SubtypeRho
	SubtypeGradientXfer
	SubtypeTi
	SubtypeGravXfer
)

// Task is a pre-constructed stub the activator turns into scheduled work.
// It is pooled per step via github.com/outofforest/mass, mirroring the
// teacher's pipeline.TransactionRequest: a flat struct with a Next handle
// so a cell's per-phase task list is a plain singly linked chain through the
// arena rather than a separately allocated container.
type Task struct {
	Type    TaskType
	Subtype TaskSubtype
	CI, CJ  CellIndex // CJ is NoCell for self/unary tasks
	Flags   SortMask  // sort direction, for pair/sub_pair tasks
	Skip    bool
	Target  RankID // destination rank, for TaskSend
	Tag     NodeTag

	// Next chains this task into whichever list currently owns it: either a
	// Cell.PhaseTasks list or, transiently, the schedule.Queue ready list.
	Next TaskHandle
}
