package monitor

import (
	"time"

	"landing-sentinel/internal/model"
)

// State 는 monitor cycle 단계.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateClassifying
	StateDeciding
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateClassifying:
		return "classifying"
	case StateDeciding:
		return "deciding"
	case StateReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// OutcomeKind 는 cycle 결과 분류.
type OutcomeKind string

const (
	OutcomeEmpty       OutcomeKind = "skipped_empty"
	OutcomeDuplicate   OutcomeKind = "skipped_duplicate"
	OutcomeFetchError  OutcomeKind = "skipped_fetch_error"
	OutcomeDecodeError OutcomeKind = "skipped_decode_error"
	OutcomePanic       OutcomeKind = "skipped_panic"

	OutcomeClean      OutcomeKind = "no_action"
	OutcomeEvolve     OutcomeKind = "evolve_schema"
	OutcomeQuarantine OutcomeKind = "quarantine"
)

// Outcome 은 RunCycle 1회 결과.
type Outcome struct {
	Kind      OutcomeKind
	Key       string
	Violation model.Violation
	Action    model.RemediationAction
	Err       error
}

// Skipped 는 분류까지 가지 못한 cycle 인지.
func (o Outcome) Skipped() bool {
	switch o.Kind {
	case OutcomeClean, OutcomeEvolve, OutcomeQuarantine:
		return false
	}
	return true
}

func outcomeOf(a model.RemediationAction) OutcomeKind {
	switch a.Kind {
	case model.ActionEvolveSchema:
		return OutcomeEvolve
	case model.ActionQuarantine:
		return OutcomeQuarantine
	default:
		return OutcomeClean
	}
}

// Status 는 /status 응답.
type Status struct {
	State       string      `json:"state"`
	Cycles      int64       `json:"cycles"`
	Anomalies   int64       `json:"anomalies"`
	LastCycleAt time.Time   `json:"last_cycle_at"`
	LastOutcome OutcomeKind `json:"last_outcome,omitempty"`
	LastKey     string      `json:"last_key,omitempty"`

	LastAnomalyAt     time.Time        `json:"last_anomaly_at"`
	LastAnomalyKey    string           `json:"last_anomaly_key,omitempty"`
	LastAnomalyAction model.ActionKind `json:"last_anomaly_action,omitempty"`
}
