package deploy

import (
	"github.com/chainpress/chainpress/internal/analyze"
	"github.com/chainpress/chainpress/internal/waves"
)

// Hooks are nil-safe progress callbacks for the CLI. The orchestrator
// calls them from the goroutine running Deploy, except UnitPublished
// and ChunkPublished, which fire from publish workers.
type Hooks struct {
	AnalysisDone   func(units int, warnings []analyze.Warning)
	PlanReady      func(plan *waves.Plan)
	WaveStarted    func(wave, waves, publishing, cached int)
	UnitPublished  func(path, accessPath string)
	UnitCached     func(path, accessPath string)
	ChunkPublished func(path string, index, total int)
	RecordWritten  func(path string)
}

func (h Hooks) analysisDone(units int, warnings []analyze.Warning) {
	if h.AnalysisDone != nil {
		h.AnalysisDone(units, warnings)
	}
}

func (h Hooks) planReady(plan *waves.Plan) {
	if h.PlanReady != nil {
		h.PlanReady(plan)
	}
}

func (h Hooks) waveStarted(wave, waves, publishing, cached int) {
	if h.WaveStarted != nil {
		h.WaveStarted(wave, waves, publishing, cached)
	}
}

func (h Hooks) unitCached(path, accessPath string) {
	if h.UnitCached != nil {
		h.UnitCached(path, accessPath)
	}
}

func (h Hooks) recordWritten(path string) {
	if h.RecordWritten != nil {
		h.RecordWritten(path)
	}
}
