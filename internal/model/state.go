package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Stage is a node of the lookup state machine.
type Stage string

const (
	StageStart         Stage = "start"
	StageNameResolved  Stage = "name_resolved"
	StageFactsGathered Stage = "facts_gathered"
	StageMerged        Stage = "merged"
	StageClassified    Stage = "classified"
	StageFailed        Stage = "failed"
)

// stageOrder ranks the success path. Failed sits outside it.
var stageOrder = map[Stage]int{
	StageStart:         0,
	StageNameResolved:  1,
	StageFactsGathered: 2,
	StageMerged:        3,
	StageClassified:    4,
}

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageClassified || s == StageFailed
}

// CanAdvance reports whether moving from s to next is a legal transition:
// exactly one step forward on the success path, or to Failed from any
// non-terminal stage.
func (s Stage) CanAdvance(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	cur, ok := stageOrder[s]
	if !ok {
		return false
	}
	n, ok := stageOrder[next]
	return ok && n == cur+1
}

// StageStatus is the outcome of a single stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// StageResult records one executed stage for logs and CLI output.
type StageResult struct {
	Name     string       `json:"name"`
	Status   StageStatus  `json:"status"`
	Duration int64        `json:"duration_ms"`
	Usage    []TokenUsage `json:"usage,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// ErrFieldAlreadySet is returned when a state field would be overwritten.
var ErrFieldAlreadySet = eris.New("model: state field already set")

// PipelineState is threaded through one lookup run. Fields are filled in
// pipeline order and never cleared.
type PipelineState struct {
	RunID          string        `json:"run_id"`
	UserInput      string        `json:"userInput"`
	ResolvedName   string        `json:"resolvedName,omitempty"`
	FactsProviderA *CompanyFacts `json:"factsFromProviderA,omitempty"`
	FactsProviderB *CompanyFacts `json:"factsFromProviderB,omitempty"`
	MergedFacts    *CompanyFacts `json:"mergedFacts,omitempty"`
	Classification string        `json:"classification,omitempty"`

	Stage     Stage         `json:"stage"`
	Err       error         `json:"-"`
	Stages    []StageResult `json:"stages,omitempty"`
	Usage     []TokenUsage  `json:"usage,omitempty"`
	CostUSD   float64       `json:"cost_usd"`
	StartedAt time.Time     `json:"started_at"`
}

// NewPipelineState returns a fresh state at the Start stage.
func NewPipelineState(runID, userInput string) *PipelineState {
	return &PipelineState{
		RunID:     runID,
		UserInput: userInput,
		Stage:     StageStart,
		StartedAt: time.Now(),
	}
}

// SetResolvedName records the canonical company name.
func (s *PipelineState) SetResolvedName(name string) error {
	if s.ResolvedName != "" {
		return eris.Wrap(ErrFieldAlreadySet, "resolvedName")
	}
	s.ResolvedName = name
	return nil
}

// SetProviderFacts records both fetcher outputs at once, as they arrive
// together at the join.
func (s *PipelineState) SetProviderFacts(a, b CompanyFacts) error {
	if s.FactsProviderA != nil || s.FactsProviderB != nil {
		return eris.Wrap(ErrFieldAlreadySet, "provider facts")
	}
	ca, cb := a.Clone(), b.Clone()
	s.FactsProviderA = &ca
	s.FactsProviderB = &cb
	return nil
}

// SetMergedFacts records the consensus record.
func (s *PipelineState) SetMergedFacts(f CompanyFacts) error {
	if s.MergedFacts != nil {
		return eris.Wrap(ErrFieldAlreadySet, "mergedFacts")
	}
	c := f.Clone()
	s.MergedFacts = &c
	return nil
}

// SetClassification records the size tier label.
func (s *PipelineState) SetClassification(label string) error {
	if s.Classification != "" {
		return eris.Wrap(ErrFieldAlreadySet, "classification")
	}
	s.Classification = label
	return nil
}

// AddUsage appends token usage for one backend call.
func (s *PipelineState) AddUsage(u ...TokenUsage) {
	s.Usage = append(s.Usage, u...)
}

// TotalTokens sums all recorded token usage.
func (s *PipelineState) TotalTokens() int64 {
	var n int64
	for _, u := range s.Usage {
		n += u.Total()
	}
	return n
}

// Result returns the caller contract for a classified run.
func (s *PipelineState) Result() (Result, error) {
	if s.Stage != StageClassified || s.MergedFacts == nil {
		return Result{}, eris.Errorf("model: run %s not classified (stage %s)", s.RunID, s.Stage)
	}
	return Result{
		CompanyInfo:    s.MergedFacts.Clone(),
		Classification: s.Classification,
	}, nil
}
