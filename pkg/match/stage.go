package match

import "sync/atomic"

// Stage is the lifecycle of a match as seen from outside its goroutine.
type Stage string

const (
	StageActive Stage = "Active" // Ticking and accepting actions
	StageEnded  Stage = "Ended"  // Terminated; retained in the registry for the grace window
	StagePurged Stage = "Purged" // Removed from the registry
)

type stageManager struct {
	current atomic.Value
}

func newStageManager() *stageManager {
	m := &stageManager{}
	m.current.Store(StageActive)
	return m
}

func (m *stageManager) CompareAndSwap(oldStage, newStage Stage) (swapped bool) {
	return m.current.CompareAndSwap(oldStage, newStage)
}

func (m *stageManager) Current() Stage {
	return m.current.Load().(Stage) //nolint:errcheck // only Stage values are stored
}

func (m *stageManager) Store(val Stage) {
	m.current.Store(val)
}
